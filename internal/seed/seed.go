// Package seed loads a roster of users and teams from YAML. Teams are owned
// by an external system in production; the fixture stands in for it locally.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/store"
)

type UserSpec struct {
	ID       string `yaml:"id"`
	FullName string `yaml:"fullName"`
}

// TeamSpec lists members in join order; the position becomes JoinSeq.
type TeamSpec struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Leader   string   `yaml:"leader"`
	Manager  string   `yaml:"manager"`
	Capacity int      `yaml:"capacity"`
	Members  []string `yaml:"members"`
}

type Roster struct {
	Users []UserSpec `yaml:"users"`
	Teams []TeamSpec `yaml:"teams"`
}

func Parse(data []byte) (Roster, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Roster{}, fmt.Errorf("seed: roster is empty")
	}
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Roster{}, fmt.Errorf("seed: decode roster: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Roster{}, err
	}
	return r, nil
}

func LoadFile(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("seed: read %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return Roster{}, fmt.Errorf("seed: %s: %w", path, err)
	}
	return r, nil
}

func (r Roster) Validate() error {
	users := make(map[string]bool, len(r.Users))
	for _, u := range r.Users {
		id := strings.TrimSpace(u.ID)
		if id == "" {
			return fmt.Errorf("seed: user without id")
		}
		if users[id] {
			return fmt.Errorf("seed: duplicate user %q", id)
		}
		users[id] = true
	}
	known := func(id string) bool { return users[id] }

	teams := make(map[string]bool, len(r.Teams))
	for _, t := range r.Teams {
		if t.ID == "" {
			return fmt.Errorf("seed: team without id")
		}
		if teams[t.ID] {
			return fmt.Errorf("seed: duplicate team %q", t.ID)
		}
		teams[t.ID] = true
		if !known(t.Leader) {
			return fmt.Errorf("seed: team %s: unknown leader %q", t.ID, t.Leader)
		}
		if t.Manager != "" && !known(t.Manager) {
			return fmt.Errorf("seed: team %s: unknown manager %q", t.ID, t.Manager)
		}
		for _, m := range t.Members {
			if !known(m) {
				return fmt.Errorf("seed: team %s: unknown member %q", t.ID, m)
			}
		}
	}
	return nil
}

func (t TeamSpec) Team() engine.Team {
	team := engine.Team{
		ID:        t.ID,
		Name:      t.Name,
		LeaderID:  t.Leader,
		ManagerID: t.Manager,
		Capacity:  t.Capacity,
	}
	for i, m := range t.Members {
		team.Members = append(team.Members, engine.Member{UserID: m, JoinSeq: int64(i + 1)})
	}
	return team
}

// Apply writes users first so team rows never reference a missing user.
func (r Roster) Apply(ctx context.Context, dst store.Roster) error {
	for _, u := range r.Users {
		if err := dst.PutUser(ctx, engine.User{ID: u.ID, FullName: u.FullName}); err != nil {
			return fmt.Errorf("seed: put user %s: %w", u.ID, err)
		}
	}
	for _, t := range r.Teams {
		if err := dst.PutTeam(ctx, t.Team()); err != nil {
			return fmt.Errorf("seed: put team %s: %w", t.ID, err)
		}
	}
	return nil
}
