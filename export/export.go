// Package export renders finished discussion sessions as Markdown, JSON,
// or plain text for sharing outside the tool.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jwkim/roundtable"
)

// Format names a supported export format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
	FormatText     Format = "txt"
)

// Render exports a session in the given format.
func Render(s *roundtable.Session, f Format) (string, error) {
	switch f {
	case FormatMarkdown:
		return Markdown(s), nil
	case FormatJSON:
		return JSON(s)
	case FormatText:
		return Text(s), nil
	default:
		return "", fmt.Errorf("export: unknown format %q", f)
	}
}

// Markdown renders a session as a Markdown document.
func Markdown(s *roundtable.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s Discussion\n\n", titleOf(s))
	fmt.Fprintf(&sb, "- Date: %s\n", formatTime(s.CreatedAt))
	fmt.Fprintf(&sb, "- AIs: %s\n", strings.Join(s.ParticipatingAIs, ", "))
	fmt.Fprintf(&sb, "- Rounds: %d\n", s.TotalRounds)
	fmt.Fprintf(&sb, "- Status: %s\n\n", s.Status)

	sb.WriteString("## Question\n\n")
	sb.WriteString(s.UserQuery)
	sb.WriteString("\n\n## Discussion\n\n")

	currentRound := -1
	for _, m := range s.Messages {
		if m.SenderType == roundtable.SenderAI && m.Round != currentRound {
			currentRound = m.Round
			fmt.Fprintf(&sb, "### Round %d\n\n", currentRound)
		}
		if m.SenderType == roundtable.SenderUser {
			fmt.Fprintf(&sb, "**User:** %s\n\n", m.Content)
			continue
		}
		fmt.Fprintf(&sb, "**%s:**\n\n%s\n\n", m.SenderID, m.Content)
	}

	if r := s.Result; r != nil {
		sb.WriteString("## Result\n\n")
		sb.WriteString(r.Summary)
		sb.WriteString("\n")
		if len(r.KeyPoints) > 0 {
			sb.WriteString("\n")
			for _, p := range r.KeyPoints {
				fmt.Fprintf(&sb, "- %s\n", p)
			}
		}
	}
	return sb.String()
}

// jsonSession mirrors Session with RFC 3339 timestamps.
type jsonSession struct {
	ID               string                `json:"id"`
	UserQuery        string                `json:"user_query"`
	TaskType         roundtable.TaskType   `json:"task_type"`
	ParticipatingAIs []string              `json:"participating_ais"`
	TotalRounds      int                   `json:"total_rounds"`
	Status           string                `json:"status"`
	CreatedAt        string                `json:"created_at"`
	UpdatedAt        string                `json:"updated_at"`
	Messages         []jsonMessage         `json:"messages"`
	Result           *roundtable.Synthesis `json:"result,omitempty"`
}

type jsonMessage struct {
	ID         string `json:"id"`
	SenderType string `json:"sender_type"`
	SenderID   string `json:"sender_id"`
	Content    string `json:"content"`
	Round      int    `json:"round_num"`
	TokenCount int    `json:"token_count,omitempty"`
	Metadata   string `json:"metadata,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// JSON renders a session as indented JSON.
func JSON(s *roundtable.Session) (string, error) {
	out := jsonSession{
		ID:               s.ID,
		UserQuery:        s.UserQuery,
		TaskType:         s.TaskType,
		ParticipatingAIs: s.ParticipatingAIs,
		TotalRounds:      s.TotalRounds,
		Status:           string(s.Status),
		CreatedAt:        formatTime(s.CreatedAt),
		UpdatedAt:        formatTime(s.UpdatedAt),
		Result:           s.Result,
	}
	for _, m := range s.Messages {
		out.Messages = append(out.Messages, jsonMessage{
			ID:         m.ID,
			SenderType: string(m.SenderType),
			SenderID:   m.SenderID,
			Content:    m.Content,
			Round:      m.Round,
			TokenCount: m.TokenCount,
			Metadata:   m.Metadata,
			CreatedAt:  formatTime(m.CreatedAt),
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export json: %w", err)
	}
	return string(data), nil
}

// Import reads a JSON export and reconstructs the session. Ids are
// regenerated, message session ids follow the new session id, and
// timestamps are normalized back to Unix seconds.
func Import(r io.Reader) (*roundtable.Session, error) {
	var in jsonSession
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("import json: %w", err)
	}
	s := &roundtable.Session{
		ID:               roundtable.NewID(),
		UserQuery:        in.UserQuery,
		TaskType:         in.TaskType,
		ParticipatingAIs: in.ParticipatingAIs,
		TotalRounds:      in.TotalRounds,
		Status:           roundtable.SessionStatus(in.Status),
		CreatedAt:        parseTime(in.CreatedAt),
		UpdatedAt:        parseTime(in.UpdatedAt),
		Result:           in.Result,
	}
	for _, m := range in.Messages {
		s.Messages = append(s.Messages, roundtable.Message{
			ID:         roundtable.NewID(),
			SessionID:  s.ID,
			SenderType: roundtable.SenderType(m.SenderType),
			SenderID:   m.SenderID,
			Content:    m.Content,
			Round:      m.Round,
			TokenCount: m.TokenCount,
			Metadata:   m.Metadata,
			CreatedAt:  parseTime(m.CreatedAt),
		})
	}
	return s, nil
}

// Text renders a session as plain text, with Markdown stripped from the
// assistant responses.
func Text(s *roundtable.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Discussion\n", titleOf(s))
	fmt.Fprintf(&sb, "Date: %s | AIs: %s | Rounds: %d | Status: %s\n",
		formatTime(s.CreatedAt), strings.Join(s.ParticipatingAIs, ", "), s.TotalRounds, s.Status)
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n\n")

	for _, m := range s.Messages {
		if m.SenderType == roundtable.SenderUser {
			fmt.Fprintf(&sb, "[USER] %s\n\n", m.Content)
			continue
		}
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", strings.ToUpper(m.SenderID), plainText(m.Content))
	}

	if r := s.Result; r != nil {
		sb.WriteString(strings.Repeat("=", 60))
		sb.WriteString("\n")
		sb.WriteString(r.Summary)
		sb.WriteString("\n")
	}
	return sb.String()
}

// titleOf derives a short document title from the user query.
func titleOf(s *roundtable.Session) string {
	words := strings.Fields(s.UserQuery)
	if len(words) > 6 {
		words = words[:6]
	}
	title := strings.Join(words, " ")
	if title == "" {
		return "Roundtable"
	}
	return title
}

func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

// parseTime is the inverse of formatTime; malformed input maps to zero.
func parseTime(s string) int64 {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.Unix()
}
