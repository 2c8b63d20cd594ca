// Package stats aggregates an organization's artifact collection.
package stats

import (
	"sort"

	"chartline/internal/domain"
)

// TopN caps both ranked lists.
const TopN = 5

// TopArtifact is one entry of the most-used ranking.
type TopArtifact struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Shape         domain.Shape `json:"shape"`
	TotalInstalls int          `json:"total_installs"`
	UniqueUsers   int          `json:"unique_users"`
}

// TopCreator is one entry of the top-creators ranking.
type TopCreator struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Artifacts int    `json:"artifacts"`
	Installs  int    `json:"installs"`
}

// Stats summarizes a collection.
type Stats struct {
	Total       int           `json:"total"`
	Generated   int           `json:"generated"`
	Approved    int           `json:"approved"`
	Pending     int           `json:"pending"`
	Rejected    int           `json:"rejected"`
	Draft       int           `json:"draft"`
	MostUsed    []TopArtifact `json:"most_used"`
	TopCreators []TopCreator  `json:"top_creators"`
}

// Compute is a pure function of artifacts. Equal counts keep the order in which the artifact
// or creator first appears in the input.
func Compute(artifacts []domain.OrgArtifact) Stats {
	s := Stats{Total: len(artifacts), MostUsed: []TopArtifact{}, TopCreators: []TopCreator{}}

	var creators []TopCreator
	index := make(map[string]int)
	for _, a := range artifacts {
		if a.Source == domain.SourceGenerated {
			s.Generated++
		}
		switch a.Approval.State {
		case domain.ApprovalApproved:
			s.Approved++
		case domain.ApprovalPending:
			s.Pending++
		case domain.ApprovalRejected:
			s.Rejected++
		case domain.ApprovalDraft:
			s.Draft++
		}

		s.MostUsed = append(s.MostUsed, TopArtifact{
			ID:            a.ID,
			Name:          a.Definition.Name,
			Shape:         a.Definition.Shape,
			TotalInstalls: a.Usage.TotalInstalls,
			UniqueUsers:   a.Usage.UniqueUsers,
		})

		i, ok := index[a.Creator.ID]
		if !ok {
			i = len(creators)
			index[a.Creator.ID] = i
			creators = append(creators, TopCreator{ID: a.Creator.ID, Name: a.Creator.Name})
		}
		creators[i].Artifacts++
		creators[i].Installs += a.Usage.TotalInstalls
	}

	sort.SliceStable(s.MostUsed, func(i, j int) bool {
		return s.MostUsed[i].TotalInstalls > s.MostUsed[j].TotalInstalls
	})
	if len(s.MostUsed) > TopN {
		s.MostUsed = s.MostUsed[:TopN]
	}

	sort.SliceStable(creators, func(i, j int) bool {
		return creators[i].Artifacts > creators[j].Artifacts
	})
	if len(creators) > TopN {
		creators = creators[:TopN]
	}
	s.TopCreators = append(s.TopCreators, creators...)
	return s
}
