package bot

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"guard-bot/commands"
)

func (b *Bot) Run() {
	err := b.Session.Open()
	if err != nil {
		log.Fatalf("Error opening connection: %v", err)
	}

	// Background loops and vote recovery come up before commands are
	// registered, so a restart never leaves a live vote without a deadline.
	b.scheduler.Start()

	log.Println("Registering commands...")
	cmds := commands.Generate()
	registered, err := b.Session.ApplicationCommandBulkOverwrite(b.Config.AppID, "", cmds)
	if err != nil {
		log.Printf("cannot register commands: %v", err)
	} else {
		b.RegisteredCommands = registered
	}

	log.Println("Bot is now running. Press CTRL-C to exit.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
}
