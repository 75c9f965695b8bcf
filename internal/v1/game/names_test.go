package game

import (
	mrand "math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePlayerName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Алиса", "Алиса"},
		{"trims and collapses whitespace", "  Пётр   Первый  ", "Пётр Первый"},
		{"empty falls back", "   ", "Игрок"},
		{"staff impersonation cyrillic", "Главный Админ", "Игрок"},
		{"staff impersonation latin", "MODERATOR", "Игрок"},
		{"host impersonation", "я ведущий", "Игрок"},
		{"caps at 24 runes", strings.Repeat("я", 40), strings.Repeat("я", 24)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizePlayerName(tt.in))
		})
	}
}

func TestSanitizeRoomID(t *testing.T) {
	assert.Equal(t, "ROOM01", SanitizeRoomID("room01"))
	assert.Equal(t, "AB12", SanitizeRoomID(" ab-1 2! "))
	assert.Equal(t, "ABCDEFGH", SanitizeRoomID("abcdefghijkl"))
	assert.Equal(t, "", SanitizeRoomID("---"))
}

func TestSanitizeTeamName(t *testing.T) {
	assert.Equal(t, "Ракеты", SanitizeTeamName("  Ракеты  ", "Команда A"))
	assert.Equal(t, "Команда A", SanitizeTeamName("   ", "Команда A"))
	assert.Len(t, []rune(SanitizeTeamName(strings.Repeat("б", 50), "x")), 32)
}

func TestNormalizeClientID(t *testing.T) {
	assert.Equal(t, "abc-def_12345", NormalizeClientID("  ABC-def_12345  "))
	assert.Equal(t, "", NormalizeClientID("short"))
	assert.Equal(t, "", NormalizeClientID(""))
	assert.Len(t, NormalizeClientID(strings.Repeat("a", 100)), 64)
	// Disallowed characters are stripped before the length check.
	assert.Equal(t, "", NormalizeClientID("!!!@@@###$$$"))
}

func TestNormalizePlayerToken(t *testing.T) {
	assert.Equal(t, "AbC123456789", NormalizePlayerToken(" AbC123456789 "))
	assert.Equal(t, "", NormalizePlayerToken("tooshort"))
	assert.Len(t, NormalizePlayerToken(strings.Repeat("x", 200)), 128)
}

func TestBuildGuestIdentityKey(t *testing.T) {
	assert.Equal(t, "guest:device-12345", BuildGuestIdentityKey("Device-12345"))
	assert.Equal(t, "", BuildGuestIdentityKey("nope"))
}

func TestNormalizeGameMode(t *testing.T) {
	assert.Equal(t, ModeFFA, NormalizeGameMode(" FFA "))
	assert.Equal(t, ModeChaos, NormalizeGameMode("chaos"))
	assert.Equal(t, ModeClassic, NormalizeGameMode("classic"))
	assert.Equal(t, ModeClassic, NormalizeGameMode("unknown"))
	assert.Equal(t, ModeClassic, NormalizeGameMode(""))
}

func TestNextTeam(t *testing.T) {
	assert.Equal(t, TeamB, NextTeam(TeamA))
	assert.Equal(t, TeamA, NextTeam(TeamB))
}

func TestCalculateSpeedBonus(t *testing.T) {
	assert.Equal(t, 2, CalculateSpeedBonus(QuestionTimeMs))
	assert.Equal(t, 2, CalculateSpeedBonus(20100)) // exactly 0.67
	assert.Equal(t, 1, CalculateSpeedBonus(20099))
	assert.Equal(t, 1, CalculateSpeedBonus(10200)) // exactly 0.34
	assert.Equal(t, 0, CalculateSpeedBonus(10199))
	assert.Equal(t, 0, CalculateSpeedBonus(0))
	assert.Equal(t, 0, CalculateSpeedBonus(-500))
}

func TestRandomRoomCode(t *testing.T) {
	rng := mrand.New(mrand.NewSource(42))
	code := RandomRoomCode(rng, 6)
	assert.Len(t, code, 6)
	for _, ch := range code {
		assert.Contains(t, roomCodeChars, string(ch))
	}
	// Too-small lengths are clamped.
	assert.Len(t, RandomRoomCode(rng, 1), 4)
}

func TestHashSecret(t *testing.T) {
	assert.Equal(t, HashSecret("token"), HashSecret("token"))
	assert.NotEqual(t, HashSecret("token"), HashSecret("other"))
	assert.Len(t, HashSecret("token"), 64)
}

func TestGenerateSecret(t *testing.T) {
	a := GenerateSecret(24)
	b := GenerateSecret(24)
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
