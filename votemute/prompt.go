package votemute

import (
	"fmt"
	"time"

	"guard-bot/model"
)

// promptText renders the live vote prompt with the current tally.
func promptText(v *model.Vote, tally model.Tally) string {
	return fmt.Sprintf(
		"🗳️ **Vote to mute** <@%s>\n"+
			"Started by <@%s>. Mute duration if passed: %s.\n"+
			"Votes: ✅ %d / ❌ %d (needs %d total, closes <t:%d:R>)\n"+
			"The creator, the target, and moderators may not vote.",
		v.TargetID, v.CreatorID,
		(time.Duration(v.MuteDuration) * time.Second).String(),
		tally.Yes, tally.No, v.RequiredBallots, v.Deadline,
	)
}

// resultText renders the final state the prompt is edited to, with the
// voting controls gone.
func resultText(v *model.Vote, tally model.Tally, outcome string) string {
	var verdict string
	switch outcome {
	case model.VoteOutcomeApplied:
		verdict = fmt.Sprintf("passed, <@%s> is muted for %s", v.TargetID, (time.Duration(v.MuteDuration) * time.Second).String())
	case model.VoteOutcomeTimedOut:
		verdict = "failed, the voting window closed without a majority"
	default:
		verdict = "failed, the majority voted no"
	}
	return fmt.Sprintf("🗳️ **Vote finished**: %s.\nFinal tally: ✅ %d / ❌ %d", verdict, tally.Yes, tally.No)
}
