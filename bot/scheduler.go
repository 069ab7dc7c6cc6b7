package bot

import (
	"log"
	"sync"
	"time"
)

// Scheduler supervises the background machinery: the expiry reconciler
// loops, the vote engine's recovered deadline timers, and periodic cache
// pruning. Start runs before the bot accepts new moderation actions.
type Scheduler struct {
	bot  *Bot
	done chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler creates a new scheduler.
func NewScheduler(bot *Bot) *Scheduler {
	return &Scheduler{
		bot:  bot,
		done: make(chan struct{}),
	}
}

// Start begins all background tasks.
func (s *Scheduler) Start() {
	if err := s.bot.VoteEngine.Recover(); err != nil {
		log.Printf("Error recovering live votes: %v", err)
	}
	s.bot.Reconciler.Start()

	s.wg.Add(1)
	go s.startPeriodicTasks()
}

// Stop terminates all background tasks gracefully.
func (s *Scheduler) Stop() {
	log.Println("Stopping scheduler...")
	close(s.done)
	s.bot.Reconciler.Stop()
	s.bot.VoteEngine.Stop()
	s.wg.Wait()
	log.Println("Scheduler stopped.")
}

func (s *Scheduler) startPeriodicTasks() {
	defer s.wg.Done()
	pruneTicker := time.NewTicker(1 * time.Hour)
	defer pruneTicker.Stop()

	for {
		select {
		case <-pruneTicker.C:
			log.Println("Pruning raid guard windows...")
			s.bot.RaidGuard.Prune()
		case <-s.done:
			return
		}
	}
}
