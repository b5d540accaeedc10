package notify

import (
	"fmt"
	"slices"
	"time"

	"github.com/graaaaa/eventhub/internal/ingest"
)

// Embed colors.
const (
	ColorGreen  = 0x57F287 // clean run
	ColorYellow = 0xFEE75C // records skipped
	ColorRed    = 0xED4245 // records failed
)

// MaxEmbedsPerRequest is the Discord API limit for embeds per message.
const MaxEmbedsPerRequest = 10

// DiscordPayload represents a Discord webhook request body.
type DiscordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []DiscordEmbed `json:"embeds,omitempty"`

	// Sources lists the run source behind each embed, in embed order.
	Sources []string `json:"-"`
}

// DiscordEmbed represents a Discord embed.
type DiscordEmbed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// BuildPayloads renders one embed per run, runs with failures first, split
// into as many payloads as the embed limit requires.
func BuildPayloads(runs []ingest.RunResult) []DiscordPayload {
	if len(runs) == 0 {
		return nil
	}

	ordered := make([]ingest.RunResult, 0, len(runs))
	for _, r := range runs {
		if r.Report.Failed > 0 {
			ordered = append(ordered, r)
		}
	}
	for _, r := range runs {
		if r.Report.Failed == 0 {
			ordered = append(ordered, r)
		}
	}

	var payloads []DiscordPayload
	for batch := range slices.Chunk(ordered, MaxEmbedsPerRequest) {
		p := DiscordPayload{
			Embeds:  make([]DiscordEmbed, 0, len(batch)),
			Sources: make([]string, 0, len(batch)),
		}
		for _, r := range batch {
			p.Embeds = append(p.Embeds, buildRunEmbed(r))
			p.Sources = append(p.Sources, r.Source)
		}
		payloads = append(payloads, p)
	}
	return payloads
}

func buildRunEmbed(r ingest.RunResult) DiscordEmbed {
	rep := r.Report

	title := "Sync finished: " + r.Source
	color := ColorGreen
	switch {
	case rep.Failed > 0:
		title = "Sync failed: " + r.Source
		color = ColorRed
	case rep.Skipped > 0:
		color = ColorYellow
	}

	desc := fmt.Sprintf("**%d** upserted, **%d** updated, **%d** unchanged, **%d** skipped, **%d** failed",
		rep.Upserted, rep.Updated, rep.Unchanged, rep.Skipped, rep.Failed)
	desc += fmt.Sprintf("\nRun `%s` took %s", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Second))

	return DiscordEmbed{
		Title:       title,
		Description: desc,
		Color:       color,
		Timestamp:   r.FinishedAt.UTC().Format(time.RFC3339),
	}
}
