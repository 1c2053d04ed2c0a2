package core

import "time"

func (b *Bot) SetWatchdogInterval(d time.Duration) {
	b.watchdogInterval = d
}

func (b *Bot) SetStatsInterval(d time.Duration) {
	b.statsInterval = d
}
