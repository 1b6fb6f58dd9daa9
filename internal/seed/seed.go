// Package seed loads tenants, members, checklist templates and reminders
// from a YAML file.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/shiftboard/internal/model"
	"github.com/dukerupert/shiftboard/internal/store"
)

type File struct {
	Tenants []Tenant `yaml:"tenants"`
}

type Tenant struct {
	Name      string                              `yaml:"name"`
	Members   []Member                            `yaml:"members"`
	Checklist map[string]map[model.Segment][]Item `yaml:"checklists"`
	Reminders []Reminder                          `yaml:"reminders"`
}

type Member struct {
	UserID int64  `yaml:"user_id"`
	Name   string `yaml:"name"`
	Role   string `yaml:"role"`
}

// Item is a checklist entry. In YAML it is either a plain string or a
// mapping with text and kind.
type Item struct {
	Text string         `yaml:"text"`
	Kind model.ItemKind `yaml:"kind"`
}

func (it *Item) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		it.Text = n.Value
		it.Kind = model.KindSimple
		return nil
	}
	type plain Item
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*it = Item(p)
	if it.Kind == "" {
		it.Kind = model.KindSimple
	}
	return nil
}

type Reminder struct {
	Role            string `yaml:"role"`
	Text            string `yaml:"text"`
	IntervalMinutes int    `yaml:"interval_minutes"`
}

var segmentOrder = []model.Segment{model.SegmentMorning, model.SegmentCommon, model.SegmentEvening}

// Parse decodes and validates a seed file.
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	for _, t := range f.Tenants {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("tenant without name")
		}
		for _, m := range t.Members {
			if m.UserID <= 0 || m.Role == "" {
				return nil, fmt.Errorf("tenant %q: member %q needs user_id and role", t.Name, m.Name)
			}
		}
		for role, segs := range t.Checklist {
			for seg := range segs {
				if seg != model.SegmentMorning && seg != model.SegmentCommon && seg != model.SegmentEvening {
					return nil, fmt.Errorf("tenant %q: role %q: unknown segment %q", t.Name, role, seg)
				}
			}
		}
		for _, rem := range t.Reminders {
			if rem.IntervalMinutes <= 0 {
				return nil, fmt.Errorf("tenant %q: reminder %q needs a positive interval_minutes", t.Name, rem.Text)
			}
		}
	}
	return &f, nil
}

// Stats counts rows Apply created.
type Stats struct {
	Tenants   int
	Members   int
	Items     int
	Reminders int
}

// Apply writes the seed into db. Running it again only adds what is missing:
// tenants match by name, members are upserted, checklist items and reminders
// match by role and text.
func Apply(ctx context.Context, db *sql.DB, f *File, logger *slog.Logger) (Stats, error) {
	var st Stats
	tenants := store.NewTenantStore(db)
	members := store.NewMemberStore(db)
	checklists := store.NewChecklistStore(db)

	existingReminders, err := checklists.ListReminders(ctx)
	if err != nil {
		return st, err
	}

	for _, t := range f.Tenants {
		tenant, err := tenants.GetByName(ctx, t.Name)
		if err != nil {
			return st, err
		}
		if tenant == nil {
			if tenant, err = tenants.Create(ctx, t.Name); err != nil {
				return st, err
			}
			st.Tenants++
			logger.Info("tenant created", "tenant_id", tenant.ID, "name", tenant.Name)
		}

		for _, m := range t.Members {
			if _, err := members.Upsert(ctx, tenant.ID, m.UserID, m.Name, m.Role); err != nil {
				return st, err
			}
			st.Members++
		}

		for role, segs := range t.Checklist {
			have, err := checklists.ListItems(ctx, tenant.ID, role)
			if err != nil {
				return st, err
			}
			seen := map[string]bool{}
			for _, it := range have {
				seen[string(it.Segment)+"\x00"+it.Text] = true
			}
			for _, seg := range segmentOrder {
				for _, it := range segs[seg] {
					if seen[string(seg)+"\x00"+it.Text] {
						continue
					}
					if _, err := checklists.CreateItem(ctx, tenant.ID, role, seg, it.Text, it.Kind); err != nil {
						return st, err
					}
					st.Items++
				}
			}
		}

		for _, rem := range t.Reminders {
			if hasReminder(existingReminders, tenant.ID, rem) {
				continue
			}
			if _, err := checklists.CreateReminder(ctx, tenant.ID, rem.Role, rem.Text, rem.IntervalMinutes); err != nil {
				return st, err
			}
			st.Reminders++
		}
	}
	return st, nil
}

func hasReminder(existing []model.Reminder, tenantID int64, rem Reminder) bool {
	for _, r := range existing {
		if r.TenantID == tenantID && r.Role == rem.Role && r.Text == rem.Text {
			return true
		}
	}
	return false
}
