package pipeline

import "strings"

// intentToolset maps an intent tag to the additional tool names it pulls
// into the turn's catalogue, beyond the always-on core set.
var intentToolset = map[string][]string{
	"file_ops":   {"read_file", "write_file", "edit_file", "list_dir"},
	"exec":       {"exec"},
	"web":        {"web_search", "web_fetch"},
	"memory":     {"memory_query", "memory_upsert"},
	"messaging":  {"message"},
	"task_mgmt":  {"list_tasks", "spawn"},
	"scheduling": {"cron"},
	"send_image": {"message"},
}

// alwaysOnGhostTools are unioned into the tool catalogue for ghost-channel
// routine prompts regardless of classified intent.
var alwaysOnGhostTools = []string{"memory_query", "list_tasks"}

// classifyIntent is a pure-function keyword classifier mapping content to a
// set of intent tags.
func classifyIntent(content string) map[string]bool {
	lower := strings.ToLower(content)
	tags := make(map[string]bool)

	fileKeywords := []string{"file", "directory", "folder", "read ", "write ", "edit ", "ls ", "list dir"}
	execKeywords := []string{"run ", "execute", "command", "shell", "script"}
	webKeywords := []string{"search", "browse", "http://", "https://", "website", "url", "fetch"}
	memoryKeywords := []string{"remember", "recall", "memory", "note that", "don't forget"}
	taskKeywords := []string{"background", "long-running", "spawn", "subtask", "task status"}
	schedulingKeywords := []string{"remind me", "schedule", "every day", "cron", "at 9am", "daily"}
	imageKeywords := []string{"send me the image", "send the photo", "show me the picture", "send image"}

	match := func(keywords []string) bool {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}

	if match(fileKeywords) {
		tags["file_ops"] = true
	}
	if match(execKeywords) {
		tags["exec"] = true
	}
	if match(webKeywords) {
		tags["web"] = true
	}
	if match(memoryKeywords) {
		tags["memory"] = true
	}
	if match(taskKeywords) {
		tags["task_mgmt"] = true
	}
	if match(schedulingKeywords) {
		tags["scheduling"] = true
	}
	if match(imageKeywords) {
		tags["send_image"] = true
	}
	tags["messaging"] = true
	return tags
}

// toolNamesForIntent derives a deduplicated tool-name set from classified
// intent tags, unioned with alwaysOnGhostTools when isGhost is true.
func toolNamesForIntent(tags map[string]bool, isGhost bool) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(list []string) {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	for tag, on := range tags {
		if on {
			add(intentToolset[tag])
		}
	}
	if isGhost {
		add(alwaysOnGhostTools)
	}
	return names
}

// filterDisabled removes any tool name present (with value false) in the
// toggles' disabled-tools set.
func filterDisabled(names []string, disabledTools map[string]bool) []string {
	out := names[:0:0]
	for _, n := range names {
		if !disabledTools[n] {
			out = append(out, n)
		}
	}
	return out
}
