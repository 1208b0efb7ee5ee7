package prompt

import (
	"fmt"
	"strings"
)

// SummarySystemPrompt frames every background summarization job.
const SummarySystemPrompt = `أنت مساعد يلخص محادثات عربية.
أعد النص المطلوب فقط دون مقدمات أو تعليقات.`

// MergeRoomSummary asks the model to fold one new message into an
// existing room summary. The caller enforces the final length cap; the
// instruction here keeps the model from ballooning the text.
func MergeRoomSummary(prior, newText, senderName string) string {
	var b strings.Builder
	b.WriteString("هذا ملخص محادثات غرفة دردشة:\n")
	b.WriteString(prior)
	b.WriteString("\n\nوهذه رسالة جديدة وصلت للغرفة:\n")
	b.WriteString(Attributed(newText, senderName))
	b.WriteString("\n\nادمج الرسالة الجديدة في الملخص وأعد ملخصا واحدا محدثا، ")
	b.WriteString("بحد أقصى 3000 حرف، دون أي نص آخر.")
	return b.String()
}

// CondenseRoomMessage asks for a summary of a single long message when no
// prior room summary exists yet.
func CondenseRoomMessage(newText, senderName string) string {
	var b strings.Builder
	b.WriteString("لخص هذه الرسالة من غرفة دردشة في جملة أو جملتين، دون أي نص آخر:\n")
	b.WriteString(Attributed(newText, senderName))
	return b.String()
}

// MergeUserPersonalization folds a new message into the user's profile
// summary. The focus differs from the room prompt: what the message says
// about the person, not about the conversation.
func MergeUserPersonalization(prior, newText, senderName string) string {
	var b strings.Builder
	b.WriteString("هذا ملخص شخصية مستخدم في غرفة دردشة (اهتماماته، أسلوبه، تفضيلاته):\n")
	b.WriteString(prior)
	b.WriteString("\n\nوهذه رسالة جديدة كتبها:\n")
	b.WriteString(Attributed(newText, senderName))
	b.WriteString("\n\nحدث الملخص بما تكشفه الرسالة عن شخصيته واهتماماته وأسلوبه، ")
	b.WriteString("بحد أقصى 3000 حرف، دون أي نص آخر.")
	return b.String()
}

// CondenseUserMessage seeds a profile from one long message.
func CondenseUserMessage(newText, senderName string) string {
	var b strings.Builder
	b.WriteString("صف ما تكشفه هذه الرسالة عن كاتبها (اهتماماته، أسلوبه، تفضيلاته) في جملة أو جملتين، دون أي نص آخر:\n")
	b.WriteString(Attributed(newText, senderName))
	return b.String()
}

// Attributed prefixes text with its sender's name when known. Summaries
// keep who-said-what meaningful across merges.
func Attributed(text, senderName string) string {
	if senderName == "" {
		return text
	}
	return fmt.Sprintf("%s: %s", senderName, text)
}
