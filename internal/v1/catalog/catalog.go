// Package catalog provisions question sets for rooms. It loads a topic
// catalog from JSON (or falls back to the embedded bank), builds the
// difficulty plan for a game and samples questions with shuffled cursors
// so back-to-back games in the same room do not repeat the same order.
package catalog

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// Difficulty of a single question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// DifficultyLevels in plan order.
var DifficultyLevels = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// DifficultyMode selects how difficulties are distributed over a game.
type DifficultyMode string

const (
	ModeEasy        DifficultyMode = "easy"
	ModeMedium      DifficultyMode = "medium"
	ModeHard        DifficultyMode = "hard"
	ModeMixed       DifficultyMode = "mixed"
	ModeProgressive DifficultyMode = "progressive"
)

// Question is one sampled, play-ready question.
type Question struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	Options      []string   `json:"options"`
	CorrectIndex int        `json:"correctIndex"`
	Difficulty   Difficulty `json:"difficulty"`
}

// template is a catalog entry before option shuffling.
type template struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

// Catalog holds sanitized question banks per topic and difficulty.
type Catalog struct {
	topics       map[string]map[Difficulty][]template
	topicOrder   []string
	defaultTopic string
	rng          *rand.Rand
}

const (
	maxTopicLen    = 80
	maxQuestionLen = 300
	maxOptions     = 6
	minOptions     = 2

	MinQuestionCount     = 5
	MaxQuestionCount     = 7
	DefaultQuestionCount = 5
)

const defaultTopicName = "Общая эрудиция"

// Load builds a catalog from the JSON file at path. An empty path loads the
// embedded bank. The file layout is {"topics": {"<name>": {"easy": [...], ...}}}.
func Load(path string, rng *rand.Rand) (*Catalog, error) {
	raw := defaultBank
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file: %w", err)
		}
		raw = data
	}
	return Parse(raw, rng)
}

// Parse builds a catalog from raw JSON.
func Parse(raw []byte, rng *rand.Rand) (*Catalog, error) {
	var payload struct {
		Topics map[string]map[string][]json.RawMessage `json:"topics"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if payload.Topics == nil {
		return nil, fmt.Errorf("catalog must contain a 'topics' object")
	}

	c := &Catalog{topics: make(map[string]map[Difficulty][]template), rng: rng}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(rand.Int63()))
	}

	for nameRaw, difficulties := range payload.Topics {
		name := strings.TrimSpace(nameRaw)
		if len(name) > maxTopicLen {
			name = name[:maxTopicLen]
		}
		if name == "" {
			continue
		}

		byDifficulty := make(map[Difficulty][]template)
		for _, difficulty := range DifficultyLevels {
			var entries []template
			for _, entryRaw := range difficulties[string(difficulty)] {
				if entry, ok := sanitizeEntry(entryRaw); ok {
					entries = append(entries, entry)
				}
			}
			byDifficulty[difficulty] = entries
		}

		// A topic is only playable when every difficulty bucket has questions.
		complete := true
		for _, difficulty := range DifficultyLevels {
			if len(byDifficulty[difficulty]) == 0 {
				complete = false
				break
			}
		}
		if complete {
			c.topics[name] = byDifficulty
			c.topicOrder = append(c.topicOrder, name)
		}
	}

	if len(c.topics) == 0 {
		return nil, fmt.Errorf("no valid questions were loaded from the catalog")
	}

	if _, ok := c.topics[defaultTopicName]; ok {
		c.defaultTopic = defaultTopicName
	} else {
		c.defaultTopic = c.topicOrder[0]
	}
	return c, nil
}

func sanitizeEntry(raw json.RawMessage) (template, bool) {
	var entry struct {
		Text         string `json:"text"`
		Options      []any  `json:"options"`
		CorrectIndex int    `json:"correctIndex"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return template{}, false
	}

	text := strings.TrimSpace(entry.Text)
	if text == "" || entry.Options == nil {
		return template{}, false
	}
	if len(text) > maxQuestionLen {
		text = text[:maxQuestionLen]
	}

	var options []string
	for _, optionRaw := range entry.Options {
		option := strings.TrimSpace(fmt.Sprintf("%v", optionRaw))
		if option != "" {
			options = append(options, option)
		}
	}
	if len(options) < minOptions {
		return template{}, false
	}
	if len(options) > maxOptions {
		options = options[:maxOptions]
	}

	if entry.CorrectIndex < 0 || entry.CorrectIndex >= len(options) {
		return template{}, false
	}

	return template{Text: text, Options: options, CorrectIndex: entry.CorrectIndex}, true
}

// SupportedTopics returns the playable topic names.
func (c *Catalog) SupportedTopics() []string {
	out := make([]string, len(c.topicOrder))
	copy(out, c.topicOrder)
	return out
}

// DefaultTopic returns the topic used when a requested one is unknown.
func (c *Catalog) DefaultTopic() string {
	return c.defaultTopic
}

// NormalizeTopic maps a raw topic string onto a supported topic name,
// case-insensitively, falling back to the default topic.
func (c *Catalog) NormalizeTopic(raw string) string {
	value := strings.TrimSpace(raw)
	if len(value) > maxTopicLen {
		value = value[:maxTopicLen]
	}
	if value == "" {
		return c.defaultTopic
	}
	for _, topic := range c.topicOrder {
		if strings.EqualFold(topic, value) {
			return topic
		}
	}
	return c.defaultTopic
}

// ClampQuestionCount bounds a requested question count to 5..7.
func ClampQuestionCount(raw any) int {
	num := DefaultQuestionCount
	switch v := raw.(type) {
	case int:
		num = v
	case int64:
		num = int(v)
	case float64:
		num = int(v + 0.5)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return DefaultQuestionCount
		}
		num = parsed
	default:
		return DefaultQuestionCount
	}
	if num < MinQuestionCount {
		return MinQuestionCount
	}
	if num > MaxQuestionCount {
		return MaxQuestionCount
	}
	return num
}

// NormalizeDifficultyMode maps a raw string onto a known mode, defaulting to mixed.
func NormalizeDifficultyMode(raw string) DifficultyMode {
	switch DifficultyMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeEasy:
		return ModeEasy
	case ModeMedium:
		return ModeMedium
	case ModeHard:
		return ModeHard
	case ModeProgressive:
		return ModeProgressive
	default:
		return ModeMixed
	}
}

// BuildDifficultyPlan returns the per-question difficulty sequence for a game.
func BuildDifficultyPlan(count int, mode DifficultyMode) []Difficulty {
	switch mode {
	case ModeEasy, ModeMedium, ModeHard:
		plan := make([]Difficulty, count)
		for i := range plan {
			plan[i] = Difficulty(mode)
		}
		return plan
	case ModeProgressive:
		var base []Difficulty
		switch {
		case count <= 5:
			base = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyHard, DifficultyHard}
		case count == 6:
			base = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyMedium, DifficultyHard, DifficultyHard, DifficultyHard}
		default:
			base = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyMedium, DifficultyHard, DifficultyHard, DifficultyHard, DifficultyHard}
		}
		if count < len(base) {
			base = base[:count]
		}
		return base
	default:
		plan := make([]Difficulty, count)
		for i := range plan {
			plan[i] = DifficultyLevels[i%len(DifficultyLevels)]
		}
		return plan
	}
}

// CreateTopicQuestions samples a play-ready question set for one game.
// Questions cycle through each difficulty bucket in a shuffled order, and the
// correct answer rotates through shuffled option slots so it does not cluster.
func (c *Catalog) CreateTopicQuestions(topic string, count int, mode DifficultyMode) []Question {
	normalizedTopic := c.NormalizeTopic(topic)
	if count < 1 {
		count = DefaultQuestionCount
	}
	if count > 50 {
		count = 50
	}
	plan := BuildDifficultyPlan(count, NormalizeDifficultyMode(string(mode)))

	buckets := c.topics[normalizedTopic]
	if buckets == nil {
		buckets = c.topics[c.defaultTopic]
	}

	cursorByDifficulty := make(map[Difficulty]int)
	orderByDifficulty := make(map[Difficulty][]int)
	slotOrderByCount := make(map[int][]int)
	slotCursorByCount := make(map[int]int)

	output := make([]Question, 0, len(plan))
	for index, difficulty := range plan {
		bucket := buckets[difficulty]
		if len(bucket) == 0 {
			continue
		}

		order := orderByDifficulty[difficulty]
		if len(order) != len(bucket) {
			order = c.rng.Perm(len(bucket))
			orderByDifficulty[difficulty] = order
		}
		cursor := cursorByDifficulty[difficulty]
		if cursor > 0 && cursor%len(order) == 0 {
			c.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		tmpl := bucket[order[cursor%len(order)]]
		cursorByDifficulty[difficulty] = cursor + 1

		optionCount := len(tmpl.Options)
		slotOrder := slotOrderByCount[optionCount]
		if len(slotOrder) != optionCount {
			slotOrder = c.rng.Perm(optionCount)
			slotOrderByCount[optionCount] = slotOrder
			slotCursorByCount[optionCount] = 0
		}
		slotCursor := slotCursorByCount[optionCount]
		if slotCursor > 0 && slotCursor%optionCount == 0 {
			c.rng.Shuffle(len(slotOrder), func(i, j int) { slotOrder[i], slotOrder[j] = slotOrder[j], slotOrder[i] })
		}
		desiredCorrectIndex := slotOrder[slotCursor%optionCount]
		slotCursorByCount[optionCount] = slotCursor + 1

		options, correctIndex := c.shuffleOptions(tmpl, desiredCorrectIndex)

		output = append(output, Question{
			ID:           strconv.Itoa(index + 1),
			Text:         tmpl.Text,
			Options:      options,
			CorrectIndex: correctIndex,
			Difficulty:   difficulty,
		})
	}
	return output
}

// shuffleOptions places the correct option into the desired slot and fills
// the remaining slots with shuffled distractors.
func (c *Catalog) shuffleOptions(tmpl template, desiredCorrectIndex int) ([]string, int) {
	correctOption := tmpl.Options[tmpl.CorrectIndex]
	distractors := make([]string, 0, len(tmpl.Options)-1)
	for i, option := range tmpl.Options {
		if i != tmpl.CorrectIndex {
			distractors = append(distractors, option)
		}
	}
	c.rng.Shuffle(len(distractors), func(i, j int) { distractors[i], distractors[j] = distractors[j], distractors[i] })

	if desiredCorrectIndex < 0 || desiredCorrectIndex >= len(tmpl.Options) {
		desiredCorrectIndex = c.rng.Intn(len(tmpl.Options))
	}

	shuffled := make([]string, len(tmpl.Options))
	next := 0
	for i := range shuffled {
		if i == desiredCorrectIndex {
			shuffled[i] = correctOption
		} else {
			shuffled[i] = distractors[next]
			next++
		}
	}
	return shuffled, desiredCorrectIndex
}
