package selection

import "github.com/use-agent/tietpapers/models"

// Group is the set of chosen records that share a course code and sanitized
// course name.
type Group struct {
	Key     string
	Records []models.PaperRecord
}

// GroupKey is "{courseCode}__{sanitizedCourseName}".
func GroupKey(r models.PaperRecord) string {
	return models.PathSegment(r.CourseCode) + "__" + models.SanitizeName(r.CourseName)
}

// ByCourse partitions records into groups. Groups appear in first-seen order
// and each keeps its records in input order.
func ByCourse(records []models.PaperRecord) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, r := range records {
		key := GroupKey(r)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}

// Downloadable counts records in the group that carry a link.
func (g Group) Downloadable() int {
	n := 0
	for _, r := range g.Records {
		if r.Downloadable() {
			n++
		}
	}
	return n
}
