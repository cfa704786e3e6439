package engine

import (
	"fmt"
	"slices"
)

// OrderedParticipants returns the rotation order for a team: the leader
// first, then members by join sequence. A leader listed among the members is
// counted once, and the order never depends on storage iteration order.
func OrderedParticipants(t Team) []string {
	members := slices.Clone(t.Members)
	slices.SortStableFunc(members, func(a, b Member) int {
		if a.JoinSeq != b.JoinSeq {
			if a.JoinSeq < b.JoinSeq {
				return -1
			}
			return 1
		}
		if a.UserID < b.UserID {
			return -1
		}
		if a.UserID > b.UserID {
			return 1
		}
		return 0
	})

	out := make([]string, 0, len(members)+1)
	seen := make(map[string]bool, len(members)+1)
	if t.LeaderID != "" {
		out = append(out, t.LeaderID)
		seen[t.LeaderID] = true
	}
	for _, m := range members {
		if m.UserID == "" || seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		out = append(out, m.UserID)
	}
	return out
}

func indexOf(participants []string, userID string) (int, error) {
	i := slices.Index(participants, userID)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", ErrNotAParticipant, userID)
	}
	return i, nil
}

// PredecessorOf returns whose previous-round ideas are passed to userID.
func PredecessorOf(participants []string, userID string) (string, error) {
	i, err := indexOf(participants, userID)
	if err != nil {
		return "", err
	}
	n := len(participants)
	return participants[(i-1+n)%n], nil
}

// SuccessorOf returns who receives userID's ideas in the next round.
func SuccessorOf(participants []string, userID string) (string, error) {
	i, err := indexOf(participants, userID)
	if err != nil {
		return "", err
	}
	return participants[(i+1)%len(participants)], nil
}

func IsParticipant(participants []string, userID string) bool {
	return slices.Contains(participants, userID)
}
