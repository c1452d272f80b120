package conversations

import (
	"fmt"
	"time"
)

type MemoryCategory string

const (
	MemoryCategoryAllergy   MemoryCategory = "Allergy"
	MemoryCategoryCondition MemoryCategory = "Condition"
	MemoryCategoryGoal      MemoryCategory = "Goal"
	MemoryCategoryGeneral   MemoryCategory = "General"
)

func (c MemoryCategory) Valid() bool {
	switch c {
	case MemoryCategoryAllergy, MemoryCategoryCondition, MemoryCategoryGoal, MemoryCategoryGeneral:
		return true
	default:
		return false
	}
}

// Memory is a fact about the user that is carried into every conversation.
type Memory struct {
	ID        string
	Text      string
	Category  MemoryCategory
	CreatedAt time.Time
}

func (m Memory) String() string {
	category := m.Category
	if !category.Valid() {
		category = MemoryCategoryGeneral
	}
	return fmt.Sprintf("[%s] %s", category, m.Text)
}
