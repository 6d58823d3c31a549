package dosing

import (
	"strings"

	"immobilog/pkg/domain"
)

var catalog = map[domain.DrugCategory][]string{
	domain.CategoryPrimary: {
		"Ketamine",
		"Tiletamine-Zolazepam (Telazol)",
		"Medetomidine",
		"Xylazine",
		"Dexmedetomidine",
		"Midazolam",
		"Butorphanol",
		"Etorphine (M99)",
		"Acepromazine",
		"Diazepam",
		"Azaperone",
	},
	domain.CategoryReversal: {
		"Atipamezole (Antisedan)",
		"Naltrexone",
		"Yohimbine",
		"Flumazenil",
		"Tolazoline",
		"Naloxone",
	},
	domain.CategoryEmergency: {
		"Epinephrine",
		"Doxapram",
		"Atropine",
		"Glycopyrrolate",
		"Dexamethasone",
		"Furosemide",
		"Prednisolone",
		"Diphenhydramine",
	},
}

var categoryIndex = buildCategoryIndex()

func buildCategoryIndex() map[string]domain.DrugCategory {
	idx := make(map[string]domain.DrugCategory)
	for cat, names := range catalog {
		for _, n := range names {
			idx[normalizeKey(n)] = cat
			// "Atipamezole (Antisedan)" is also recorded as plain "Atipamezole".
			if base, _, found := strings.Cut(n, " ("); found {
				if _, exists := idx[normalizeKey(base)]; !exists {
					idx[normalizeKey(base)] = cat
				}
			}
		}
	}
	return idx
}

// CategoryOf returns the category of a known drug name, ignoring case.
func CategoryOf(name string) (domain.DrugCategory, bool) {
	cat, ok := categoryIndex[normalizeKey(name)]
	return cat, ok
}

// Drugs lists the catalog names of one category in display order.
func Drugs(category domain.DrugCategory) []string {
	return append([]string(nil), catalog[category]...)
}

// AllDrugs lists every catalog name grouped primary, reversal, emergency.
func AllDrugs() []string {
	var out []string
	for _, cat := range []domain.DrugCategory{domain.CategoryPrimary, domain.CategoryReversal, domain.CategoryEmergency} {
		out = append(out, catalog[cat]...)
	}
	return out
}
