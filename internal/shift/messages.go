package shift

import (
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/shiftboard/internal/checklist"
	"github.com/dukerupert/shiftboard/internal/model"
)

func startedText(name string, sh *model.Shift, loc *time.Location) string {
	return fmt.Sprintf("Shift started: %s (%s, %s) at %s",
		name, sh.Role, sh.Segment, sh.StartedAt.In(loc).Format("15:04"))
}

func interimText(p *Progress, comment string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Interim report #%d at %s: %d/%d done (%d%%)\n",
		p.Shift.ID, now.Format("15:04"), p.Done, p.Total, p.Percent)
	for _, d := range p.Duties {
		mark := "[ ]"
		if d.Done {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, d.Title)
	}
	if c := strings.TrimSpace(comment); c != "" {
		fmt.Fprintf(&b, "Comment: %s\n", c)
	}
	return strings.TrimRight(b.String(), "\n")
}

func closedText(name string, s *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Final report #%d\n", s.Shift.ID)
	fmt.Fprintf(&b, "Employee: %s\n", name)
	fmt.Fprintf(&b, "Duration: %dh %dmin\n", s.Minutes/60, s.Minutes%60)
	fmt.Fprintf(&b, "Efficiency: %d%% (%s)\n", s.Percent, gradeLabel(s.Grade))

	if len(s.Missed) > 0 {
		b.WriteString("Not done:\n")
		for _, m := range s.Missed {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	} else {
		b.WriteString("All duties done\n")
	}
	if len(s.CanceledTasks) > 0 {
		b.WriteString("Canceled tasks:\n")
		for _, t := range s.CanceledTasks {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if c := strings.TrimSpace(s.Shift.Comment); c != "" {
		fmt.Fprintf(&b, "Note: %s\n", c)
	}
	return strings.TrimRight(b.String(), "\n")
}

func canceledTaskText(t model.ExtraTask) string {
	return fmt.Sprintf("Task canceled, shift closed: %s", t.Text)
}

func gradeLabel(g checklist.Grade) string {
	switch g {
	case checklist.GradeExcellent:
		return "excellent"
	case checklist.GradeGood:
		return "good"
	default:
		return "needs attention"
	}
}
