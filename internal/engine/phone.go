package engine

import "github.com/meridian-mel/fieldqc-cli/internal/model"

// buildPhoneIndex counts occurrences of each normalized phone number across
// the whole input set. The count is global: it is not scoped to an
// enumerator or a day.
func buildPhoneIndex(records []*model.DerivedRecord) map[string]int {
	index := make(map[string]int)
	for _, rec := range records {
		if rec.Phone != "" {
			index[rec.Phone]++
		}
	}
	return index
}

// flagDuplicatePhones raises DuplicatePhone on every record whose phone
// appears more than once in the index.
func flagDuplicatePhones(records []*model.DerivedRecord, index map[string]int) {
	for _, rec := range records {
		if rec.Phone != "" && index[rec.Phone] > 1 {
			rec.Quality.AddFlag(model.FlagDuplicatePhone)
		}
	}
}
