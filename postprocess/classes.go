package postprocess

// Waste categories the system reports.
const (
	CategoryPlastic = "plastic"
	CategoryGlass   = "glass"
	CategoryPaper   = "paper"
	CategoryMetal   = "metal"
	CategoryOrganic = "organic"
)

// wasteClasses maps the underlying detector's COCO class ids to coarse
// waste categories. Ids absent from the table are not waste items and
// are dropped silently.
var wasteClasses = map[int]string{
	39: CategoryPlastic, // bottle
	41: CategoryPlastic, // cup
	45: CategoryPlastic, // bowl

	40: CategoryGlass, // wine glass
	75: CategoryGlass, // vase

	73: CategoryPaper, // book

	43: CategoryMetal, // knife
	44: CategoryMetal, // spoon

	46: CategoryOrganic, // banana
	47: CategoryOrganic, // apple
	49: CategoryOrganic, // orange
	50: CategoryOrganic, // broccoli
	51: CategoryOrganic, // carrot
}

// CategoryFor maps a raw class id to its waste category.
func CategoryFor(classID int) (string, bool) {
	category, ok := wasteClasses[classID]
	return category, ok
}

// Categories lists every reported waste category.
func Categories() []string {
	return []string{
		CategoryPlastic,
		CategoryGlass,
		CategoryPaper,
		CategoryMetal,
		CategoryOrganic,
	}
}

// DefaultThresholds returns the per-category confidence cutoffs used
// when the caller does not configure its own.
func DefaultThresholds() map[string]float32 {
	thresholds := make(map[string]float32, len(Categories()))
	for _, category := range Categories() {
		thresholds[category] = 0.5
	}
	return thresholds
}
