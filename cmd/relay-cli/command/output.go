package command

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"livetiming/cmd/relay-cli/command/client"
	"livetiming/internal/microservices/http-api/dto"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.FgHiBlack)
	keyColor  = color.New(color.FgCyan)
)

func setColor(enabled bool) {
	color.NoColor = !enabled
}

func yesNo(b bool) string {
	if b {
		return okColor.Sprint("yes")
	}
	return warnColor.Sprint("no")
}

// printStatus renders the status endpoint as an aligned block
func printStatus(w io.Writer, s *dto.StatusResponse) {
	verdict := warnColor.Sprint("NO LIVE SESSION")
	if s.Liveness.Active {
		verdict = okColor.Sprint("LIVE")
	}
	fmt.Fprintf(w, "%s\n\n", verdict)

	row := func(key string, value any) {
		fmt.Fprintf(w, "  %s %v\n", keyColor.Sprintf("%-22s", key), value)
	}
	row("upstream", s.Upstream.State)
	row("generation", s.Upstream.Generation)
	row("frames received", s.Upstream.FramesReceived)
	row("frames dropped", s.Upstream.FramesDropped)
	row("subscribers", s.Subscribers)
	fmt.Fprintln(w)
	row("connected", yesNo(s.Liveness.Connected))
	since := "never updated"
	if s.Liveness.SinceLastUpdate != "" {
		since = s.Liveness.SinceLastUpdate + " ago"
	}
	row("recent data", fmt.Sprintf("%s (%s)", yesNo(s.Liveness.RecentData), since))
	row("meaningful messages", fmt.Sprintf("%d (%s)", s.Liveness.MeaningfulMessages, yesNo(s.Liveness.EnoughMessages)))
	row("heartbeat", yesNo(s.Liveness.HasHeartbeat))
	row("session identity", yesNo(s.Liveness.HasSessionIdentity))
	status := s.Liveness.SessionStatus
	if status == "" {
		status = "-"
	}
	row("session status", fmt.Sprintf("%s (%s)", status, yesNo(s.Liveness.SessionStatusActive)))
	row("timing / car / position", fmt.Sprintf("%s / %s / %s",
		yesNo(s.Liveness.HasTimingData), yesNo(s.Liveness.HasCarData), yesNo(s.Liveness.HasPosition)))
	fmt.Fprintln(w)
	row("fields", dimColor.Sprint(strings.Join(s.Fields, ", ")))
}

// formatSummary renders one broadcast as a single line
func formatSummary(s client.Summary) string {
	if !s.Live {
		return warnColor.Sprint("no live session")
	}
	parts := []string{okColor.Sprint("live")}
	if s.SessionName != "" {
		parts = append(parts, s.SessionName)
	}
	if s.SessionStatus != "" {
		parts = append(parts, "status "+s.SessionStatus)
	}
	if s.Lap != "" {
		parts = append(parts, "lap "+s.Lap)
	}
	if s.TrackStatus != "" {
		parts = append(parts, "track "+s.TrackStatus)
	}
	parts = append(parts, dimColor.Sprintf("%d fields", s.Fields))
	return strings.Join(parts, " | ")
}
