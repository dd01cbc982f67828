package storage

import (
	"sort"

	"github.com/srtaalej/capstone-proj/internal/domain"
)

// SummarizeRecords groups records by instruction, status and error code.
// Rows are ordered by those three keys.
func SummarizeRecords(records []*domain.TransactionRecord) []InstructionStat {
	type key struct {
		instruction string
		status      string
		code        uint32
	}
	counts := make(map[key]uint64)
	for _, r := range records {
		counts[key{r.Instruction, string(r.Status), r.ErrorCode}]++
	}

	result := make([]InstructionStat, 0, len(counts))
	for k, n := range counts {
		result = append(result, InstructionStat{
			Instruction: k.instruction,
			Status:      k.status,
			ErrorCode:   k.code,
			Total:       n,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Instruction != b.Instruction {
			return a.Instruction < b.Instruction
		}
		if a.Status != b.Status {
			return a.Status < b.Status
		}
		return a.ErrorCode < b.ErrorCode
	})
	return result
}
