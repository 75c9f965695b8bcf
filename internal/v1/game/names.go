package game

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const fallbackPlayerName = "Игрок"

// roomCodeChars excludes ambiguous glyphs (O/0, I/1/L).
const roomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// forbiddenNameParts are substrings that would let a player impersonate
// staff roles in chat.
var forbiddenNameParts = []string{"админ", "admin", "модер", "moder", "ведущ", "host"}

// dynamicTeamNames is the pool offered by the random team name action.
var dynamicTeamNames = []string{
	"Импульс", "Перехват", "Фактор X", "Блиц-режим", "Прорыв",
	"Сверхновые", "Форсаж", "Рубеж", "Эпицентр", "Нулевая ошибка",
	"Контрольная точка", "Финальный ход", "Скрытый потенциал", "Мозговой штурм", "Решающий аргумент",
	"Горизонт", "Точка прорыва", "Стратегический резерв", "Ускорение", "Предел концентрации",
	"Критическая масса", "Вектор", "Смена парадигмы", "Код доступа", "Глубокий анализ",
	"Системный подход", "Синхронизация", "Быстрая логика", "Тактический ход", "Зона влияния",
	"Интеллектуальный шторм", "Второе дыхание", "Пиковая форма", "Точный расчёт", "Момент истины",
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func randomID() string {
	return uuid.NewString()
}

// GenerateSecret returns a URL-safe random token of roughly n bytes of entropy.
func GenerateSecret(n int) string {
	if n < 1 {
		n = 32
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// HashSecret hashes a token or password for storage and comparison.
func HashSecret(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// SanitizeRoomID keeps at most 8 uppercase alphanumeric characters.
func SanitizeRoomID(raw string) string {
	var b strings.Builder
	for _, ch := range strings.ToUpper(raw) {
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
			if b.Len() >= 8 {
				break
			}
		}
	}
	return b.String()
}

// SanitizePlayerName collapses whitespace, caps at 24 runes and rejects
// staff impersonation attempts.
func SanitizePlayerName(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return fallbackPlayerName
	}
	cleaned := strings.TrimSpace(truncateRunes(whitespaceRun.ReplaceAllString(value, " "), 24))
	lowered := strings.ToLower(cleaned)
	for _, part := range forbiddenNameParts {
		if strings.Contains(lowered, part) {
			return fallbackPlayerName
		}
	}
	if cleaned == "" {
		return fallbackPlayerName
	}
	return cleaned
}

// NormalizePlayerName folds a name for uniqueness comparison.
func NormalizePlayerName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SanitizeTeamName caps a team name at 32 runes, falling back when empty.
func SanitizeTeamName(raw, fallback string) string {
	trimmed := strings.TrimSpace(truncateRunes(strings.TrimSpace(raw), 32))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

// NormalizeTeamName folds a team name for uniqueness comparison.
func NormalizeTeamName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeClientID validates a client-provided device id: lowercase
// alphanumeric plus dash/underscore, between 8 and 64 characters.
func NormalizeClientID(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return ""
	}
	var b strings.Builder
	for _, ch := range value {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '-' || ch == '_' {
			b.WriteRune(ch)
		}
	}
	filtered := b.String()
	if len(filtered) < 8 {
		return ""
	}
	if len(filtered) > 64 {
		filtered = filtered[:64]
	}
	return filtered
}

// NormalizePlayerToken validates a resume token: alphanumeric plus
// dash/underscore, between 12 and 128 characters.
func NormalizePlayerToken(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	var b strings.Builder
	for _, ch := range value {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '-' || ch == '_' {
			b.WriteRune(ch)
		}
	}
	filtered := b.String()
	if len(filtered) < 12 {
		return ""
	}
	if len(filtered) > 128 {
		filtered = filtered[:128]
	}
	return filtered
}

// BuildGuestIdentityKey derives the duplicate-join identity for
// unauthenticated players. Empty when the client id is unusable.
func BuildGuestIdentityKey(clientID string) string {
	normalized := NormalizeClientID(clientID)
	if normalized == "" {
		return ""
	}
	return "guest:" + normalized
}

// NormalizeGameMode maps a raw string onto a known mode, defaulting to classic.
func NormalizeGameMode(raw string) GameMode {
	switch GameMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeFFA:
		return ModeFFA
	case ModeChaos:
		return ModeChaos
	default:
		return ModeClassic
	}
}

// NextTeam alternates between the two teams.
func NextTeam(team Team) Team {
	if team == TeamA {
		return TeamB
	}
	return TeamA
}

// CalculateSpeedBonus awards 2 extra points when at least two thirds of
// the question time remained, 1 when at least a third did.
func CalculateSpeedBonus(remainingMs int64) int {
	ratio := float64(max64(0, remainingMs)) / float64(QuestionTimeMs)
	switch {
	case ratio >= 0.67:
		return 2
	case ratio >= 0.34:
		return 1
	default:
		return 0
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
