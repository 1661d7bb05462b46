// Package common — pluralize.go склоняет русские числительные
// для человекочитаемого вывода: «1 балл», «3 балла», «11 баллов».
package common

import "fmt"

// Plural выбирает форму слова для числа n.
//
// Пример:
//
//	Plural(21, "балл", "балла", "баллов") → "балл"
//	Plural(12, "балл", "балла", "баллов") → "баллов"
func Plural(n int, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	last, lastTwo := n%10, n%100

	// 1, 21, 31, 101, но не 11 и 111
	if last == 1 && lastTwo != 11 {
		return one
	}
	// 2-4, 22-24, но не 12-14
	if last >= 2 && last <= 4 && (lastTwo < 12 || lastTwo > 14) {
		return few
	}
	return many
}

// FormatPoints форматирует баланс: FormatPoints(2350) → "2 350 баллов".
func FormatPoints(n int) string {
	return fmt.Sprintf("%s %s", FormatNumber(n), Plural(n, "балл", "балла", "баллов"))
}

// FormatDelta форматирует изменение со знаком: "+100 баллов", "-1 балл".
func FormatDelta(n int) string {
	if n >= 0 {
		return "+" + FormatPoints(n)
	}
	return FormatPoints(n)
}

// FormatDays — "1 день", "5 дней".
func FormatDays(n int) string {
	return fmt.Sprintf("%d %s", n, Plural(n, "день", "дня", "дней"))
}

// FormatMessages — "1 сообщение", "20 сообщений".
func FormatMessages(n int) string {
	return fmt.Sprintf("%d %s", n, Plural(n, "сообщение", "сообщения", "сообщений"))
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}
