package transcriber

import (
	"sort"

	"github.com/z-wentao/autocut/pkg/models"
)

// AssignSpeakers 把说话人标签合并到分段上
// 规则：分段继承覆盖其中点的发言区间的说话人；
// 中点恰好落在两个区间的边界上时，取开始时间更早的区间。
// 没有任何区间覆盖中点的分段不打标签（不填占位值）
func AssignSpeakers(segments []models.Segment, turns []models.SpeakerTurn) []models.Segment {
	if len(turns) == 0 {
		return segments
	}

	// 按开始时间排序，遍历时第一个命中的就是最早的区间
	sorted := make([]models.SpeakerTurn, len(turns))
	copy(sorted, turns)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	out := make([]models.Segment, len(segments))
	for i, seg := range segments {
		out[i] = seg

		mid := (seg.Start + seg.End) / 2
		for _, turn := range sorted {
			if turn.Start <= mid && mid <= turn.End {
				out[i].Speaker = turn.Speaker
				break
			}
		}
	}

	return out
}
