package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shpitdev/community-landscape/internal/pipeline"
)

// Options selects the optional sections of a Summary.
type Options struct {
	// Top limits the community distribution. 0 shows all.
	Top int
	// Community adds a member listing for that community.
	Community string
	// MinCommunities lists accounts in at least this many communities. 0 disables.
	MinCommunities int
	// Member adds the community listing of one followed account.
	Member string
}

// Summary is the rendered view of one user's landscape.
type Summary struct {
	Username    string
	Following   int
	Rows        int
	Unclustered int
	Communities []ClusterCount
	Unique      int

	Community   string
	Members     []Member
	Multi       []MultiMember
	MinMulti    int
	Member      string
	Memberships []Membership

	// Narrative is optional free text from a Narrator.
	Narrative string
}

// Build aggregates rows for username.
func Build(username string, following int, rows []pipeline.Row, opts Options) Summary {
	counts := ClusterCounts(rows)
	s := Summary{
		Username:    username,
		Following:   following,
		Rows:        len(rows),
		Unclustered: Unclustered(rows),
		Unique:      len(counts),
		Communities: counts,
		MinMulti:    opts.MinCommunities,
	}
	if opts.Top > 0 && len(s.Communities) > opts.Top {
		s.Communities = s.Communities[:opts.Top]
	}
	if c := strings.TrimSpace(opts.Community); c != "" {
		s.Community = c
		s.Members = CommunityMembers(rows, c)
	}
	if opts.MinCommunities > 0 {
		s.Multi = MultiCommunity(rows, opts.MinCommunities)
	}
	if m := strings.TrimSpace(opts.Member); m != "" {
		s.Member = m
		s.Memberships = UserCommunities(rows, m)
	}
	return s
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const barWidth = 30

// Render writes a terminal view of s.
func Render(w io.Writer, s Summary) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Community landscape of @%s", s.Username)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "@%s follows %d accounts (%d rows).\n", s.Username, s.Following, s.Rows)
	fmt.Fprintf(&b, "%d accounts are not included in any community.\n", s.Unclustered)
	fmt.Fprintf(&b, "Followed accounts appear in %d unique communities.\n", s.Unique)

	if len(s.Communities) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Community distribution"))
		b.WriteString("\n")
		b.WriteString(boxStyle.Render(distribution(s.Communities)))
		b.WriteString("\n")
	}

	if s.Community != "" {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Members of " + s.Community))
		b.WriteString("\n")
		if len(s.Members) == 0 {
			b.WriteString(mutedStyle.Render("no followed accounts in this community"))
			b.WriteString("\n")
		} else {
			if avg, ok := AverageRank(s.Members); ok {
				fmt.Fprintf(&b, "@%s follows %d accounts in %s, average rank %.0f.\n", s.Username, len(s.Members), s.Community, avg)
			}
			lines := make([]string, len(s.Members))
			for i, m := range s.Members {
				lines[i] = fmt.Sprintf("%-6s %-20s %s", rankLabel(m.Rank.String()), m.Username, mutedStyle.Render(m.ProfileURL()))
			}
			b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
			b.WriteString("\n")
		}
	}

	if s.MinMulti > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render(fmt.Sprintf("Accounts in %d or more communities", s.MinMulti)))
		b.WriteString("\n")
		if len(s.Multi) == 0 {
			b.WriteString(mutedStyle.Render("none"))
			b.WriteString("\n")
		}
		for _, m := range s.Multi {
			fmt.Fprintf(&b, "%-20s %d  %s\n", m.Username, len(m.Communities), mutedStyle.Render(strings.Join(m.Communities, ", ")))
		}
	}

	if s.Member != "" {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Communities of @" + s.Member))
		b.WriteString("\n")
		if len(s.Memberships) == 0 {
			b.WriteString(mutedStyle.Render("none"))
			b.WriteString("\n")
		}
		for _, m := range s.Memberships {
			fmt.Fprintf(&b, "%-6s %s\n", rankLabel(m.Rank.String()), m.Community)
		}
	}

	if n := strings.TrimSpace(s.Narrative); n != "" {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Summary"))
		b.WriteString("\n")
		b.WriteString(n)
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func distribution(counts []ClusterCount) string {
	top, width := 0, 0
	for _, c := range counts {
		if c.Count > top {
			top = c.Count
		}
		if len(c.Name) > width {
			width = len(c.Name)
		}
	}
	lines := make([]string, len(counts))
	for i, c := range counts {
		n := 1
		if top > 0 {
			n = c.Count * barWidth / top
		}
		if n < 1 {
			n = 1
		}
		lines[i] = fmt.Sprintf("%-*s %4d %s", width, c.Name, c.Count, strings.Repeat("█", n))
	}
	return strings.Join(lines, "\n")
}

func rankLabel(rank string) string {
	if rank == "" {
		return "-"
	}
	return "#" + rank
}
