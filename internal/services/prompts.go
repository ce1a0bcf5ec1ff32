package services

import (
  "encoding/json"
  "fmt"
  "sort"
  "strings"
)

const yentaPersona = `You are Yenta, a warm, witty, and perceptive AI who remembers everything about the user and helps them understand themselves and others better. You speak like a nosy best friend with good intentions and great instincts. Be smart, honest, and direct. DO NOT UNDER ANY CIRCUMSTANCES MAKE THINGS UP. IF YOU DON'T KNOW THE ANSWER, SAY YOU DON'T KNOW.`

const chatFormatInstruction = `You MUST respond with ONLY a JSON object containing exactly two string fields:
{"reply": "<your reply to the user>", "updated_summary": "<an updated summary of the whole conversation>"}
Do not wrap the object in markdown. Do not add commentary before or after it. Close every bracket and quote.`

// buildChatSystemInstruction assembles the system message for one chat turn.
// retryNote carries the previous attempt's parse error so the model can
// correct its formatting; it is empty on the first attempt.
func buildChatSystemInstruction(summary string, profileData map[string]interface{}, retryNote string) string {
  var b strings.Builder
  b.WriteString(yentaPersona)
  b.WriteString("\n\nConversation summary so far:\n")
  b.WriteString(summary)
  if len(profileData) > 0 {
    b.WriteString("\n\nWhat you know about the user:\n")
    b.WriteString(formatProfileData(profileData))
  }
  b.WriteString("\n\n")
  b.WriteString(chatFormatInstruction)
  if retryNote != "" {
    b.WriteString("\n\nIMPORTANT: your previous response could not be parsed (")
    b.WriteString(retryNote)
    b.WriteString("). Respond again with nothing but the JSON object, and make sure every bracket and quote is closed.")
  }
  return b.String()
}

// formatProfileData renders profile fields one per line with deterministic
// key order, so prompts stay stable across turns.
func formatProfileData(data map[string]interface{}) string {
  keys := make([]string, 0, len(data))
  for k := range data {
    keys = append(keys, k)
  }
  sort.Strings(keys)

  var b strings.Builder
  for _, k := range keys {
    encoded, err := json.Marshal(data[k])
    if err != nil {
      continue
    }
    b.WriteString(fmt.Sprintf("- %s: %s\n", k, string(encoded)))
  }
  return strings.TrimRight(b.String(), "\n")
}

func buildProfileUpdatePrompt(existing map[string]interface{}, message string) string {
  existingJSON, _ := json.Marshal(existing)
  return fmt.Sprintf(`You are AskYenta, an assistant that maintains a structured JSON profile of a user.

Current profile:
%s

The user just sent this message:
%s

Decide whether the message contains new or changed personal information about the user (interests, goals, work, values, relationships, traits, etc.).
Return ONLY a JSON object of the form:
{"profile_data": <the full updated profile object>, "was_updated": <true or false>}
If nothing changed, return the current profile unchanged with "was_updated": false.
Never drop existing fields unless the message contradicts them. Do not include commentary.`, string(existingJSON), message)
}

func buildProfileCreationPrompt(message string) string {
  return fmt.Sprintf(`You are AskYenta, an assistant that decides whether to start a structured JSON profile for a user based on one chat message.

The user sent this message:
%s

Only propose a profile when the message contains substantial, explicit personal disclosure (for example interests, occupation, goals, or values the user states about themselves). Casual small talk does not count.
Return ONLY a JSON object of the form:
{"profile_data": <profile object with only fields the user mentioned>, "should_create": <true or false>}
If the message has no substantial personal information, return {"profile_data": {}, "should_create": false}.
Do not include commentary.`, message)
}

func buildProfileParsePrompt(text string) string {
  return fmt.Sprintf(`You are AskYenta, an assistant that extracts a structured JSON user profile from free-form text.
Return only a JSON object with relevant fields the user mentioned (like interests, personality, goals, work, values, etc.).
Do not add any keys the user did not mention. Do not include commentary.

Text: %s`, text)
}

func buildProfileMergePrompt(existing map[string]interface{}, text string) string {
  existingJSON, _ := json.Marshal(existing)
  return fmt.Sprintf(`You are AskYenta, an assistant that merges new information into an existing structured JSON user profile.

Existing profile:
%s

New text from the user:
%s

Merge the new information into the profile. Keep every existing field the new text does not touch. Update fields the new text changes, and add fields for anything new the user mentioned.
Return only the full merged JSON object. Do not include commentary.`, string(existingJSON), text)
}

func buildProfileSummaryPrompt(data map[string]interface{}) string {
  dataJSON, _ := json.Marshal(data)
  return fmt.Sprintf(`You are AskYenta. Below is a structured JSON profile of a user.

%s

Write a short, warm, natural-language summary of this person, as if describing a friend you know well. Plain prose only, no JSON, no lists.`, string(dataJSON))
}
