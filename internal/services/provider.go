package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Provider errors, mapped to HTTP statuses by the API layer
var (
	ErrProviderNotConfigured = errors.New("model provider is not configured")
	ErrQuotaExceeded         = errors.New("model quota exceeded")
	ErrUpstream              = errors.New("model upstream error")
	ErrMalformedUpstream     = errors.New("model response has no content")
)

// Provider variant names
const (
	ProviderGeminiSearch = "gemini-search"
	ProviderGemini       = "gemini"
	ProviderOpenAI       = "openai"
)

// ModelProvider turns a prompt into free-form model text.
// Variants differ in whether the model may consult live web search.
type ModelProvider interface {
	Name() string
	Grounded() bool
	Generate(ctx context.Context, prompt string) (*Generation, error)
}

// Generation is the raw reply of a model call
type Generation struct {
	Text        string
	SourceCount int      // distinct web sources the model reported grounding on
	SourceURIs  []string // the URIs behind SourceCount
	TokensUsed  int
}

// PromptInput is everything the prompt builder needs for one refresh
type PromptInput struct {
	City     string
	Date     time.Time
	LastIQ   *float64
	LastTH   *float64
	Grounded bool
	News     []NewsDocument
}

// tehranLocation resolves Asia/Tehran, falling back to the fixed +03:30 offset
func tehranLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Tehran")
	if err != nil {
		return time.FixedZone("IRST", 3*60*60+30*60)
	}
	return loc
}

// BuildHolidayPrompt renders the Persian instruction prompt
func BuildHolidayPrompt(in PromptInput) string {
	date := in.Date.In(tehranLocation()).Format("2006-01-02")

	var b strings.Builder
	b.WriteString("شما یک دستیار خبری هستید")
	if in.Grounded {
		b.WriteString(" که به ابزار Google Search دسترسی دارد")
	}
	b.WriteString(".\n")
	fmt.Fprintf(&b, "وظیفه شما: بررسی کنید که امروز (%s، به وقت تهران) در شهر %s، آیا مدارس، دانشگاه‌ها و ادارات به خاطر آلودگی هوا یا اطلاعیه‌های رسمی تعطیل یا غیرحضوری شده‌اند یا خیر.\n\n", date, in.City)

	if in.Grounded {
		b.WriteString("با جستجو، منابع رسمی و خبرگزاری‌های معتبر (مثل ایسنا، ایرنا، مهر، تسنیم و سایت استانداری) را بررسی کن و فقط بر اساس خبرهای امروز یا اطلاعیه‌های رسمی نتیجه بگیر.\n")
	} else {
		b.WriteString("فقط بر اساس اطلاعات موجود و متن خبرهای ضمیمه‌شده نتیجه بگیر و اگر مطمئن نیستی احتمال پایین گزارش کن.\n")
	}

	if in.LastIQ != nil {
		fmt.Fprintf(&b, "آخرین شاخص کیفیت هوای گزارش‌شده: %s\n", formatReading(*in.LastIQ))
	}
	if in.LastTH != nil {
		fmt.Fprintf(&b, "آستانه تعطیلی اعلام‌شده قبلی: %s\n", formatReading(*in.LastTH))
	}

	if len(in.News) > 0 {
		b.WriteString("\nمتن خبرهای جمع‌آوری‌شده از منابع:\n")
		for i, doc := range in.News {
			fmt.Fprintf(&b, "\n--- منبع %d: %s ---\n%s\n", i+1, doc.URL, doc.Content)
		}
	}

	b.WriteString(`
در نهایت فقط یک شیء JSON برگردان (هیچ متن اضافه، هیچ بلاک کد):

{
  "overall": {
    "isOff": true or false,
    "probability": عدد بین 0 تا 100,
    "reason": "توضیح کوتاه فارسی"
  },
  "grades": {
    "elementary": { "isOff": true/false, "probability": 0-100, "reason": "..." },
    "middle":     { "isOff": true/false, "probability": 0-100, "reason": "..." },
    "high":       { "isOff": true/false, "probability": 0-100, "reason": "..." },
    "university": { "isOff": true/false, "probability": 0-100, "reason": "..." },
    "offices":    { "isOff": true/false, "probability": 0-100, "reason": "..." }
  },
  "sourcesHint": "فهرست کوتاه منابع"
}

اگر هیچ اطلاعیه رسمی درباره تعطیلی امروز پیدا نکردی، برای همه مقاطع isOff را false بگذار و در reason توضیح بده که اطلاعیه رسمی پیدا نشد.
`)
	return b.String()
}

func formatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// upstreamError wraps a non-quota upstream failure with its status and body
func upstreamError(provider string, status int, body string) error {
	return fmt.Errorf("%w: %s returned status %d: %s", ErrUpstream, provider, status, strings.TrimSpace(body))
}

// quotaError wraps a rate-limit response
func quotaError(provider string, body string) error {
	return fmt.Errorf("%w: %s: %s", ErrQuotaExceeded, provider, strings.TrimSpace(body))
}
