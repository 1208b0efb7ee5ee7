// Package prompt renders the deterministic prompt text for chat and reply
// turns. Section order, headings and formatting are fixed so downstream
// behaviour is reproducible; the model only ever sees varying content
// inside a stable frame.
package prompt

import (
	"fmt"
	"strings"
	"time"
)

// ChatSystemPrompt pins the assistant persona for chat turns.
const ChatSystemPrompt = `أنت "ميجو"، مساعد ذكي وودود في غرف دردشة عربية.
تجيب دائما بالعربية بأسلوب طبيعي ومختصر ومباشر.
تعتمد على سياق الغرفة عندما يتوفر ولا تختلق معلومات غير موجودة فيه.
تحافظ على نبرة محترمة وودودة، وخفة ظل عند المناسبة دون مبالغة.`

// ReplySystemPrompt is intentionally short: the model writes as the user,
// not as an assistant.
const ReplySystemPrompt = `اكتب الرد بصوت المستخدم نفسه، لا بصفة مساعد آلي.
اجعل الرد قصيرا وطبيعيا بالعربية كأنه كتب بيده.`

// Turn is one prior exchange with the assistant.
type Turn struct {
	Question string
	Answer   string
}

// Message is one room message shown in the context window.
type Message struct {
	SenderName string
	Content    string
	CreatedAt  time.Time
	Target     bool
}

// Input carries the assembled context. PriorChats and RecentMessages
// arrive newest-first exactly as fetched; the builder re-orders prior
// chats oldest-first for rendering and keeps messages newest-first.
type Input struct {
	RoomSummary    string
	UserProfile    string
	PriorChats     []Turn
	RecentMessages []Message
	Now            time.Time
}

// HasContext reports whether any context section will render.
func (in Input) HasContext() bool {
	return in.RoomSummary != "" || in.UserProfile != "" ||
		len(in.PriorChats) > 0 || len(in.RecentMessages) > 0
}

// Chat renders the full prompt for a chat turn.
func Chat(in Input, question string) string {
	var b strings.Builder
	writeContext(&b, in)

	b.WriteString("## Task\n")
	b.WriteString("أجب عن سؤال المستخدم التالي:\n")
	b.WriteString(question)
	b.WriteString("\n\n")

	b.WriteString("## Instructions\n")
	if in.HasContext() {
		b.WriteString("استند إلى السياق أعلاه في إجابتك قدر الإمكان.\n")
		b.WriteString("إن لم يكن السؤال متعلقا بالسياق فأجب من معرفتك العامة.\n")
	} else {
		b.WriteString("لا يوجد سياق محفوظ لهذه الغرفة بعد، فأجب من معرفتك العامة.\n")
		b.WriteString("إن كان السؤال يعتمد على أحداث الغرفة فوضح أنك لا تملك سجلها.\n")
	}
	b.WriteString("اجعل answer إجابة مباشرة عن السؤال، ")
	b.WriteString("و suggested_answer رسالة جاهزة يمكن للمستخدم إرسالها في الغرفة.\n\n")

	writeOutputContract(&b)
	return b.String()
}

// Reply renders the full prompt for a reply turn. The target message is
// additionally starred inside the recent-messages list when present.
func Reply(in Input, target Message) string {
	var b strings.Builder
	writeContext(&b, in)

	b.WriteString("## Task\n")
	b.WriteString("اكتب ردا على هذه الرسالة:\n")
	fmt.Fprintf(&b, "> %s: %s\n\n", target.SenderName, target.Content)

	b.WriteString("## Instructions\n")
	if in.HasContext() {
		b.WriteString("اكتب الرد بصوت المستخدم، قصيرا وطبيعيا ومنسجما مع جو المحادثة أعلاه.\n")
	} else {
		b.WriteString("اكتب الرد بصوت المستخدم، قصيرا وطبيعيا. لا يوجد سياق محفوظ فاعتمد على الرسالة نفسها.\n")
	}
	b.WriteString("اجعل answer هو الرد المقترح، و suggested_answer صياغة بديلة له.\n\n")

	writeOutputContract(&b)
	return b.String()
}

// writeContext renders the Context block. Empty subsections are omitted
// entirely; an empty context renders no block at all so the no-context
// instruction branch stays unambiguous.
func writeContext(b *strings.Builder, in Input) {
	if !in.HasContext() {
		return
	}
	b.WriteString("## Context\n\n")

	if in.RoomSummary != "" {
		b.WriteString("### ملخص الغرفة\n")
		b.WriteString(in.RoomSummary)
		b.WriteString("\n\n")
	}
	if in.UserProfile != "" {
		b.WriteString("### ملف المستخدم\n")
		b.WriteString(in.UserProfile)
		b.WriteString("\n\n")
	}
	if len(in.PriorChats) > 0 {
		b.WriteString("### محادثات سابقة مع ميجو (من الأقدم إلى الأحدث)\n")
		for i := len(in.PriorChats) - 1; i >= 0; i-- {
			fmt.Fprintf(b, "س: %s\nج: %s\n", in.PriorChats[i].Question, in.PriorChats[i].Answer)
		}
		b.WriteString("\n")
	}
	if len(in.RecentMessages) > 0 {
		b.WriteString("### آخر الرسائل (من الأحدث إلى الأقدم)\n")
		for _, m := range in.RecentMessages {
			star := ""
			if m.Target {
				star = "★ "
			}
			fmt.Fprintf(b, "- %s[%s] %s: %s\n", star, RelativeTime(m.CreatedAt, in.Now), m.SenderName, m.Content)
		}
		b.WriteString("\n")
	}
}

func writeOutputContract(b *strings.Builder) {
	b.WriteString("## Output format\n")
	b.WriteString("أعد كائن JSON واحدا فقط، دون أسوار كود أو أي نص خارجه:\n")
	b.WriteString(`{"answer": "...", "suggested_answer": "..."}` + "\n")
	b.WriteString("كلا الحقلين نص عربي. إن لم يكن لديك اقتراح إضافي فاجعل suggested_answer نصا فارغا.\n")
}

// RelativeTime renders an Arabic relative-time label. Arabic uses a dual
// form for 2 and a distinct plural between 3 and 10, so the unit words
// change with the count.
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	if d < time.Minute {
		return "الآن"
	}
	if d < time.Hour {
		return "منذ " + arabicCount(int(d.Minutes()), "دقيقة", "دقيقتين", "دقائق")
	}
	if d < 24*time.Hour {
		return "منذ " + arabicCount(int(d.Hours()), "ساعة", "ساعتين", "ساعات")
	}
	return "منذ " + arabicCount(int(d.Hours()/24), "يوم", "يومين", "أيام")
}

func arabicCount(n int, one, two, few string) string {
	switch {
	case n <= 1:
		return one
	case n == 2:
		return two
	case n <= 10:
		return fmt.Sprintf("%d %s", n, few)
	default:
		return fmt.Sprintf("%d %s", n, one)
	}
}
