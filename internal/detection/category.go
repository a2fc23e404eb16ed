package detection

import "sort"

// #region family

// Family groups categories that share routing heuristics.
type Family string

const (
	FamilyBodilyHarm Family = "bodily_harm"
	FamilyViolence   Family = "violence"
	FamilySexual     Family = "sexual"
	FamilyDisaster   Family = "disaster"
	FamilyPhobia     Family = "phobia"
	FamilySocial     Family = "social"
	FamilySubstances Family = "substances"
	FamilyMedical    Family = "medical"
	FamilySensory    Family = "sensory"
)

// AllFamilies lists every family in a stable order.
var AllFamilies = []Family{
	FamilyBodilyHarm, FamilyViolence, FamilySexual, FamilyDisaster, FamilyPhobia,
	FamilySocial, FamilySubstances, FamilyMedical, FamilySensory,
}

// #endregion family

// #region risk

// Risk is the corroboration tier of a category.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// #endregion risk

// #region category

// Category is one of the fixed trigger categories.
type Category string

const (
	Blood             Category = "blood"
	Gore              Category = "gore"
	SelfHarm          Category = "self_harm"
	Suicide           Category = "suicide"
	Vomit             Category = "vomit"
	Violence          Category = "violence"
	Murder            Category = "murder"
	Torture           Category = "torture"
	Gunshots          Category = "gunshots"
	DomesticViolence  Category = "domestic_violence"
	ChildAbuse        Category = "child_abuse"
	AnimalCruelty     Category = "animal_cruelty"
	SexualAssault     Category = "sexual_assault"
	SexScenes         Category = "sex"
	Nudity            Category = "nudity"
	Explosions        Category = "explosions"
	NaturalDisasters  Category = "natural_disasters"
	CarCrashes        Category = "car_crashes"
	Fire              Category = "fire"
	Drowning          Category = "drowning"
	Spiders           Category = "spiders"
	Snakes            Category = "snakes"
	Insects           Category = "insects"
	Claustrophobia    Category = "claustrophobia"
	Heights           Category = "heights"
	Jumpscares        Category = "jumpscares"
	SwearWords        Category = "swear_words"
	Slurs             Category = "slurs"
	Drugs             Category = "drugs"
	Alcohol           Category = "alcohol"
	Needles           Category = "needles"
	MedicalProcedures Category = "medical_procedures"
	EatingDisorders   Category = "eating_disorders"
	FlashingLights    Category = "flashing_lights"
	LoudNoises        Category = "loud_noises"
)

// CategoryInfo is the static description of a category.
type CategoryInfo struct {
	Family Family
	Risk   Risk
}

var categoryTable = map[Category]CategoryInfo{
	Blood:             {FamilyBodilyHarm, RiskMedium},
	Gore:              {FamilyBodilyHarm, RiskHigh},
	SelfHarm:          {FamilyBodilyHarm, RiskHigh},
	Suicide:           {FamilyBodilyHarm, RiskHigh},
	Vomit:             {FamilyBodilyHarm, RiskLow},
	Violence:          {FamilyViolence, RiskMedium},
	Murder:            {FamilyViolence, RiskHigh},
	Torture:           {FamilyViolence, RiskHigh},
	Gunshots:          {FamilyViolence, RiskMedium},
	DomesticViolence:  {FamilyViolence, RiskHigh},
	ChildAbuse:        {FamilyViolence, RiskHigh},
	AnimalCruelty:     {FamilyViolence, RiskHigh},
	SexualAssault:     {FamilySexual, RiskHigh},
	SexScenes:         {FamilySexual, RiskMedium},
	Nudity:            {FamilySexual, RiskLow},
	Explosions:        {FamilyDisaster, RiskMedium},
	NaturalDisasters:  {FamilyDisaster, RiskMedium},
	CarCrashes:        {FamilyDisaster, RiskMedium},
	Fire:              {FamilyDisaster, RiskLow},
	Drowning:          {FamilyDisaster, RiskHigh},
	Spiders:           {FamilyPhobia, RiskLow},
	Snakes:            {FamilyPhobia, RiskLow},
	Insects:           {FamilyPhobia, RiskLow},
	Claustrophobia:    {FamilyPhobia, RiskLow},
	Heights:           {FamilyPhobia, RiskLow},
	Jumpscares:        {FamilyPhobia, RiskLow},
	SwearWords:        {FamilySocial, RiskLow},
	Slurs:             {FamilySocial, RiskMedium},
	Drugs:             {FamilySubstances, RiskLow},
	Alcohol:           {FamilySubstances, RiskLow},
	Needles:           {FamilyMedical, RiskMedium},
	MedicalProcedures: {FamilyMedical, RiskMedium},
	EatingDisorders:   {FamilyMedical, RiskHigh},
	FlashingLights:    {FamilySensory, RiskMedium},
	LoudNoises:        {FamilySensory, RiskLow},
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryTable[c]
	return ok
}

// Info returns the static family and risk of c. Unknown categories report ok=false.
func (c Category) Info() (CategoryInfo, bool) {
	info, ok := categoryTable[c]
	return info, ok
}

// Family returns the family of c, or "" if unknown.
func (c Category) Family() Family {
	return categoryTable[c].Family
}

// Risk returns the risk tier of c, or "" if unknown.
func (c Category) Risk() Risk {
	return categoryTable[c].Risk
}

// AllCategories returns every category sorted by name.
func AllCategories() []Category {
	out := make([]Category, 0, len(categoryTable))
	for c := range categoryTable {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// #endregion category
