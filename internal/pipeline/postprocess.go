package pipeline

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/openrt/agentcore/pkg/models"
)

var (
	bracketToolCallRe = regexp.MustCompile(`(?is)\[TOOL_CALL\].*?\[/TOOL_CALL\]`)
	fencedToolCallRe  = regexp.MustCompile("(?is)```tool_call.*?```")
)

// stripFakeToolCalls removes [TOOL_CALL]...[/TOOL_CALL] and ```tool_call
// fenced blocks that some models emit as plain text instead of issuing a
// real function call.
func stripFakeToolCalls(text string) string {
	text = bracketToolCallRe.ReplaceAllString(text, "")
	text = fencedToolCallRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

var imagePathRe = regexp.MustCompile(`(?i)(/[\w./-]+\.(?:png|jpe?g|gif|webp))`)

// findReferencedImage scans recent history for an image path referenced
// either as an absolute path under mediaDir that exists, or as a bare
// filename that exists within mediaDir.
func findReferencedImage(history []models.ChatMessage, mediaDir string) string {
	for i := len(history) - 1; i >= 0; i-- {
		text := history[i].Text()
		for _, m := range imagePathRe.FindAllString(text, -1) {
			if strings.HasPrefix(m, mediaDir) {
				if _, err := os.Stat(m); err == nil {
					return m
				}
			}
			candidate := filepath.Join(mediaDir, filepath.Base(m))
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// imChannels are IM-style channels eligible for the send-image fallback.
var imChannels = map[string]bool{"telegram": true, "slack": true, "discord": true, "whatsapp": true}

// applyImageAutoSendFallback checks whether the model should have invoked
// the message tool with media but didn't, and if so, synthesizes the
// outbound image send and blanks the trailing assistant text so no
// duplicate prose accompanies it.
func applyImageAutoSendFallback(channel string, tags map[string]bool, sentMediaMessage bool, history []models.ChatMessage, mediaDir string, finalText *string) (mediaPath string, ok bool) {
	if !imChannels[channel] || !tags["send_image"] || sentMediaMessage {
		return "", false
	}
	path := findReferencedImage(history, mediaDir)
	if path == "" {
		return "", false
	}
	*finalText = ""
	return path, true
}
