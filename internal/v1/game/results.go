package game

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"github.com/quizbattle/quizroom/internal/v1/store"
)

// ResultPlayer is one row of the final statistics table.
type ResultPlayer struct {
	PeerID            string `json:"peerId"`
	AccountUserID     *int64 `json:"accountUserId"`
	Name              string `json:"name"`
	Team              *Team  `json:"team"`
	Answers           int    `json:"answers"`
	CorrectAnswers    int    `json:"correctAnswers"`
	WrongAnswers      int    `json:"wrongAnswers"`
	SkippedAnswers    int    `json:"skippedAnswers"`
	Points            int    `json:"points"`
	TotalResponseMs   int64  `json:"totalResponseMs"`
	AvgResponseMs     *int64 `json:"avgResponseMs"`
	FastestResponseMs *int64 `json:"fastestResponseMs"`
	LastAnsweredAt    *int64 `json:"lastAnsweredAt"`
}

// RankingRow is one tie-aware place of the ffa leaderboard.
type RankingRow struct {
	Place          int    `json:"place"`
	PeerID         string `json:"peerId"`
	Name           string `json:"name"`
	Points         int    `json:"points"`
	CorrectAnswers int    `json:"correctAnswers"`
}

// CaptainContribution summarizes one classic captain's personal numbers.
type CaptainContribution struct {
	PeerID         string `json:"peerId"`
	Name           string `json:"name"`
	CorrectAnswers int    `json:"correctAnswers"`
	WrongAnswers   int    `json:"wrongAnswers"`
	Points         int    `json:"points"`
}

// buildResultPlayersLocked flattens the per-player stats into sorted
// rows. FFA ranks by points, team modes by correct answers.
func (r *Room) buildResultPlayersLocked() []ResultPlayer {
	r.syncPlayerStatsMetadataLocked()

	rows := make([]ResultPlayer, 0, len(r.playerStats))
	for peerID, stat := range r.playerStats {
		points := stat.Points
		if r.gameMode == ModeFFA {
			if score := r.playerScores[peerID]; score > points {
				points = score
			}
		}
		name := stat.Name
		if name == "" {
			name = r.playerNameForPeerLocked(peerID, fallbackPlayerName)
		}
		var avgResponseMs *int64
		if stat.Answers > 0 {
			avgResponseMs = int64Ptr(stat.TotalResponseMs / int64(stat.Answers))
		}
		rows = append(rows, ResultPlayer{
			PeerID:            peerID,
			AccountUserID:     stat.AccountUserID,
			Name:              truncateRunes(name, 24),
			Team:              stat.Team,
			Answers:           stat.Answers,
			CorrectAnswers:    stat.CorrectAnswers,
			WrongAnswers:      stat.WrongAnswers,
			SkippedAnswers:    stat.SkippedAnswers,
			Points:            points,
			TotalResponseMs:   stat.TotalResponseMs,
			AvgResponseMs:     avgResponseMs,
			FastestResponseMs: stat.FastestResponseMs,
			LastAnsweredAt:    stat.LastAnsweredAt,
		})
	}

	if r.gameMode == ModeFFA {
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Points != rows[j].Points {
				return rows[i].Points > rows[j].Points
			}
			if rows[i].CorrectAnswers != rows[j].CorrectAnswers {
				return rows[i].CorrectAnswers > rows[j].CorrectAnswers
			}
			return rows[i].Name < rows[j].Name
		})
	} else {
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].CorrectAnswers != rows[j].CorrectAnswers {
				return rows[i].CorrectAnswers > rows[j].CorrectAnswers
			}
			if rows[i].Points != rows[j].Points {
				return rows[i].Points > rows[j].Points
			}
			return rows[i].Name < rows[j].Name
		})
	}
	return rows
}

// buildFFARanking assigns places, sharing a place across ties on both
// points and correct answers.
func buildFFARanking(rows []ResultPlayer) []RankingRow {
	ranking := make([]RankingRow, 0, len(rows))
	rank := 0
	prevPoints, prevCorrect := -1, -1
	for index, row := range rows {
		if row.Points != prevPoints || row.CorrectAnswers != prevCorrect {
			rank = index + 1
			prevPoints = row.Points
			prevCorrect = row.CorrectAnswers
		}
		ranking = append(ranking, RankingRow{
			Place:          rank,
			PeerID:         row.PeerID,
			Name:           row.Name,
			Points:         row.Points,
			CorrectAnswers: row.CorrectAnswers,
		})
	}
	return ranking
}

// winnerTeamLocked returns "" on a draw.
func (r *Room) winnerTeamLocked() Team {
	if r.scores[TeamA] > r.scores[TeamB] {
		return TeamA
	}
	if r.scores[TeamB] > r.scores[TeamA] {
		return TeamB
	}
	return ""
}

// captainContributionLocked: per-team captain summaries in classic, a
// note everywhere else.
func (r *Room) captainContributionLocked(resultPlayers []ResultPlayer) map[string]any {
	contribution := map[string]any{"A": nil, "B": nil}
	if r.gameMode != ModeClassic {
		contribution["note"] = "В этом режиме капитанов нет."
		return contribution
	}
	for _, team := range TeamKeys {
		captainPeerID := r.captains[team]
		if captainPeerID == "" {
			continue
		}
		entry := &CaptainContribution{
			PeerID: captainPeerID,
			Name:   r.playerNameForPeerLocked(captainPeerID, fallbackPlayerName),
		}
		for _, row := range resultPlayers {
			if row.PeerID == captainPeerID {
				entry.Name = row.Name
				entry.CorrectAnswers = row.CorrectAnswers
				entry.WrongAnswers = row.WrongAnswers
				entry.Points = row.Points
				break
			}
		}
		contribution[string(team)] = entry
	}
	return contribution
}

func historyTail[T any](entries []T, limit int) []T {
	if len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}

// buildGameResultLocked packages the finished game for the durable
// results log. FFA repurposes the team columns for leader and runner-up.
func (r *Room) buildGameResultLocked() *store.GameResult {
	resultPlayers := r.buildResultPlayersLocked()

	if r.gameMode == ModeFFA {
		type scored struct {
			peerID string
			score  int
		}
		sortedScores := make([]scored, 0, len(r.playerScores))
		for peerID, score := range r.playerScores {
			sortedScores = append(sortedScores, scored{peerID, score})
		}
		sort.Slice(sortedScores, func(i, j int) bool {
			if sortedScores[i].score != sortedScores[j].score {
				return sortedScores[i].score > sortedScores[j].score
			}
			return sortedScores[i].peerID < sortedScores[j].peerID
		})
		var leader, runner scored
		if len(sortedScores) > 0 {
			leader = sortedScores[0]
		}
		if len(sortedScores) > 1 {
			runner = sortedScores[1]
		}
		leaderName := r.playerNameForPeerLocked(leader.peerID, "Игрок 1")
		runnerName := r.playerNameForPeerLocked(runner.peerID, "Игрок 2")
		winnerTeam := ""
		if leader.score > runner.score {
			winnerTeam = string(TeamA)
		}

		payload, _ := json.Marshal(map[string]any{
			"gameMode":        ModeFFA,
			"playerScores":    r.playerScores,
			"playerStats":     resultPlayers,
			"ranking":         buildFFARanking(resultPlayers),
			"questionHistory": historyTail(r.questionHistory, 120),
			"eventHistory":    historyTail(r.eventHistory, 180),
			"leaderPeerId":    leader.peerID,
			"finishedAt":      r.nowMs(),
		})
		return &store.GameResult{
			RoomID:     r.roomID,
			TeamAName:  truncateRunes("Лидер: "+leaderName, 32),
			TeamBName:  truncateRunes("2 место: "+runnerName, 32),
			ScoreA:     leader.score,
			ScoreB:     runner.score,
			WinnerTeam: winnerTeam,
			Payload:    payload,
		}
	}

	winnerTeam := r.winnerTeamLocked()
	var winnerForPayload *Team
	if winnerTeam != "" {
		winnerForPayload = teamPtr(winnerTeam)
	}
	payload, _ := json.Marshal(map[string]any{
		"gameMode":            r.gameMode,
		"scores":              r.scores,
		"teamNames":           r.teamNames,
		"playerStats":         resultPlayers,
		"captainContribution": r.captainContributionLocked(resultPlayers),
		"questionHistory":     historyTail(r.questionHistory, 120),
		"eventHistory":        historyTail(r.eventHistory, 180),
		"winnerTeam":          winnerForPayload,
		"finishedAt":          r.nowMs(),
	})
	return &store.GameResult{
		RoomID:     r.roomID,
		TeamAName:  r.teamNames[TeamA],
		TeamBName:  r.teamNames[TeamB],
		ScoreA:     r.scores[TeamA],
		ScoreB:     r.scores[TeamB],
		WinnerTeam: string(winnerTeam),
		Payload:    payload,
	}
}

// persistGameResultLocked appends the finished game to the durable log.
// Failures are logged and do not interrupt the results phase.
func (r *Room) persistGameResultLocked() {
	if r.deps.Store == nil {
		return
	}
	result := r.buildGameResultLocked()
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.deps.Store.AppendGameResult(ctx, result); err != nil {
		r.logger.Error("failed to persist game result", zap.Error(err))
	}
}
