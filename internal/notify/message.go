// Package notify delivers operator notifications to a Chatwork room. Delivery is
// best effort: failures are logged and counted, never propagated into a run.
package notify

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies a notification.
type Kind string

// Notification kinds.
const (
	KindFailureAlert    Kind = "failure_alert"
	KindRecovery        Kind = "recovery"
	KindFallbackUsed    Kind = "fallback_used"
	KindDailySummary    Kind = "daily_summary"
	KindDailyCheckError Kind = "daily_check_error"
)

// tag is the title suffix shown after the configured prefix.
func (k Kind) tag() string {
	switch k {
	case KindFailureAlert:
		return "[警告] スクレイピング連続失敗"
	case KindRecovery:
		return "[ok] スクレイピング復旧"
	case KindFallbackUsed:
		return "[info] 代替抽出へのフォールバック"
	case KindDailySummary:
		return "[info] ヘルスサマリー"
	case KindDailyCheckError:
		return "[警告] デイリーチェックでエラー検出"
	default:
		return "通知"
	}
}

// Detail is one "・key: value" line. Order is preserved.
type Detail struct {
	Key   string
	Value string
}

// Message is a rendered-agnostic notification.
type Message struct {
	Kind Kind
	// Subject overrides the kind's default title suffix.
	Subject string
	Body    string
	Details []Detail
}

// Title returns the full title with prefix.
func (m Message) Title(prefix string) string {
	if m.Subject != "" {
		return prefix + m.Subject
	}
	return prefix + m.Kind.tag()
}

// Render formats m as a Chatwork [info] block stamped with now.
func Render(m Message, prefix string, now time.Time) string {
	var b strings.Builder
	b.WriteString("[info][title]")
	b.WriteString(m.Title(prefix))
	b.WriteString("[/title]")
	b.WriteString(m.Body)
	if len(m.Details) > 0 {
		b.WriteString("\n\n")
		for _, d := range m.Details {
			fmt.Fprintf(&b, "・%s: %s\n", d.Key, d.Value)
		}
	}
	b.WriteString("\n")
	b.WriteString(now.Format("2006/1/2 15:04:05"))
	b.WriteString("[/info]")
	return b.String()
}

// FailureAlert reports a source that failed count times in a row.
func FailureAlert(site string, count int, lastErr string) Message {
	if lastErr == "" {
		lastErr = "不明"
	}
	return Message{
		Kind: KindFailureAlert,
		Body: fmt.Sprintf("%s のスクレイピングが %d 回連続で失敗しています。\nサイト構造が変更された可能性があります。", site, count),
		Details: []Detail{
			{Key: "サイト名", Value: site},
			{Key: "連続失敗回数", Value: fmt.Sprint(count)},
			{Key: "エラー", Value: lastErr},
		},
	}
}

// FallbackUsed reports data extracted by a secondary strategy.
func FallbackUsed(site, strategy string, slots int) Message {
	return Message{
		Kind: KindFallbackUsed,
		Body: fmt.Sprintf("%s の通常の解析で空き枠を取得できず、代替方式にフォールバックしました。\n"+
			"データは取得できましたが、サイト構造が変更された可能性があります。", site),
		Details: []Detail{
			{Key: "サイト名", Value: site},
			{Key: "フォールバック方式", Value: strategy},
			{Key: "取得した空き枠数", Value: fmt.Sprint(slots)},
		},
	}
}

// Recovery reports the first success after an alert.
func Recovery(site string) Message {
	return Message{
		Kind: KindRecovery,
		Body: fmt.Sprintf("%s のスクレイピングが復旧しました。", site),
		Details: []Detail{
			{Key: "サイト名", Value: site},
			{Key: "ステータス", Value: "正常"},
		},
	}
}

// UnhealthySite is one entry of a health summary.
type UnhealthySite struct {
	Name                string
	ConsecutiveFailures int
}

// HealthSummary is the input to DailySummary.
type HealthSummary struct {
	TotalSites   int
	HealthySites int
	Unhealthy    []UnhealthySite
}

// DailySummary builds the health digest. ok is false when every site is healthy
// and nothing should be sent.
func DailySummary(s HealthSummary) (Message, bool) {
	if len(s.Unhealthy) == 0 {
		return Message{}, false
	}
	var b strings.Builder
	b.WriteString("本日のスクレイピングヘルスサマリー\n\n")
	fmt.Fprintf(&b, "正常サイト数: %d/%d\n", s.HealthySites, s.TotalSites)
	b.WriteString("\n【異常検知サイト】\n")
	for _, site := range s.Unhealthy {
		fmt.Fprintf(&b, "・%s: 連続失敗 %d 回\n", site.Name, site.ConsecutiveFailures)
	}
	return Message{
		Kind: KindDailySummary,
		Body: b.String(),
		Details: []Detail{
			{Key: "総サイト数", Value: fmt.Sprint(s.TotalSites)},
			{Key: "正常サイト数", Value: fmt.Sprint(s.HealthySites)},
			{Key: "異常サイト数", Value: fmt.Sprint(len(s.Unhealthy))},
		},
	}, true
}

// DailyCheckError reports problems found by the daily availability check.
func DailyCheckError(date string, errs, warnings []string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s のデータ取得で問題を検出しました。\n\n", date)
	if len(errs) > 0 {
		b.WriteString("【エラー】\n")
		for _, e := range errs {
			fmt.Fprintf(&b, "・%s\n", e)
		}
	}
	if len(warnings) > 0 {
		b.WriteString("\n【警告】\n")
		for _, w := range warnings {
			fmt.Fprintf(&b, "・%s\n", w)
		}
	}
	return Message{Kind: KindDailyCheckError, Body: b.String()}
}
