package session

import (
	"sort"
	"time"
)

// ProjectGroups folds session rows into one row per visit. It does not modify rows.
//
// Rows sharing a group id form one visit; a row without a group is its own visit.
// The current row (status, game) is the latest by started_at. Exit time is the latest
// ended_at of any slot. Visits are ordered newest first by their earliest created_at.
func ProjectGroups(rows []*Session) []GroupedRow {
	buckets := make(map[string][]*Session)
	order := make([]string, 0)
	for _, r := range rows {
		if r == nil {
			continue
		}
		key := r.GroupKey()
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], r)
	}

	out := make([]GroupedRow, 0, len(order))
	for _, key := range order {
		out = append(out, projectGroup(key, buckets[key]))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out
}

func projectGroup(key string, members []*Session) GroupedRow {
	chain := make([]*Session, len(members))
	copy(chain, members)
	sortChain(chain)

	current := chain[len(chain)-1]
	row := GroupedRow{
		GroupID:          key,
		CurrentSessionID: current.ID,
		GameID:           current.GameID,
		Players:          current.Players,
		Status:           current.Status,
		UserID:           current.UserID,
		VisitorName:      current.VisitorName,
		VisitorPhone:     current.VisitorPhone,
		VisitorEmail:     current.VisitorEmail,
		StartedAt:        chain[0].StartedAt,
		EndsAt:           current.EndsAt,
		CreatedAt:        chain[0].CreatedAt,
		Slots:            make([]Slot, 0, len(chain)),
	}

	var exit *time.Time
	for _, m := range chain {
		if m.ExitToken != nil && *m.ExitToken != "" {
			row.HasExitCode = true
		}
		if m.CreatedAt.Before(row.CreatedAt) {
			row.CreatedAt = m.CreatedAt
		}
		if m.EndedAt != nil && (exit == nil || m.EndedAt.After(*exit)) {
			t := *m.EndedAt
			exit = &t
		}
		if row.VisitorName == "" {
			row.VisitorName = m.VisitorName
		}
		if row.VisitorPhone == "" {
			row.VisitorPhone = m.VisitorPhone
		}
		if row.VisitorEmail == "" {
			row.VisitorEmail = m.VisitorEmail
		}

		var ended *time.Time
		if m.EndedAt != nil {
			t := *m.EndedAt
			ended = &t
		}
		row.Slots = append(row.Slots, Slot{
			SessionID: m.ID,
			GameID:    m.GameID,
			Players:   m.Players,
			Status:    m.Status,
			StartedAt: m.StartedAt,
			EndsAt:    m.EndsAt,
			EndedAt:   ended,
		})
	}
	if current.Ended() {
		row.Status = StatusEnded
	}
	row.ExitTime = exit
	return row
}
