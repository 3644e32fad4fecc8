package models

// Daypart is a named service period within a trading day. Orders whose
// daypart cannot be determined land in DaypartUnresolved so the daypart
// totals still reconcile against the daily totals.
type Daypart string

const (
	DaypartBreakfast  Daypart = "breakfast"
	DaypartLunch      Daypart = "lunch"
	DaypartDinner     Daypart = "dinner"
	DaypartLateNight  Daypart = "late_night"
	DaypartUnresolved Daypart = "unresolved"
)

func (d Daypart) IsValid() bool {
	switch d {
	case DaypartBreakfast, DaypartLunch, DaypartDinner, DaypartLateNight, DaypartUnresolved:
		return true
	}
	return false
}

// RevenueBucket is a coarse sales category used for mix reporting.
// Line items with an unmapped sales category fall into RevenueBucketOther,
// never out of the totals.
type RevenueBucket string

const (
	RevenueBucketFood         RevenueBucket = "food"
	RevenueBucketWine         RevenueBucket = "wine"
	RevenueBucketBeer         RevenueBucket = "beer"
	RevenueBucketLiquor       RevenueBucket = "liquor"
	RevenueBucketNonAlcoholic RevenueBucket = "non_alcoholic"
	RevenueBucketOther        RevenueBucket = "other"
)

func (b RevenueBucket) IsValid() bool {
	switch b {
	case RevenueBucketFood, RevenueBucketWine, RevenueBucketBeer,
		RevenueBucketLiquor, RevenueBucketNonAlcoholic, RevenueBucketOther:
		return true
	}
	return false
}

type Channel string

const (
	ChannelDineIn   Channel = "dine_in"
	ChannelToGo     Channel = "to_go"
	ChannelDelivery Channel = "delivery"
	ChannelUnknown  Channel = "unknown"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelDineIn, ChannelToGo, ChannelDelivery, ChannelUnknown:
		return true
	}
	return false
}

type TenderMethod string

const (
	TenderMethodCash     TenderMethod = "cash"
	TenderMethodCard     TenderMethod = "card"
	TenderMethodGiftCard TenderMethod = "gift_card"
	TenderMethodOther    TenderMethod = "other"
)

// MappingType discriminates the three lookup tables stored in pos_mappings.
type MappingType string

const (
	MappingTypeCategory      MappingType = "category"
	MappingTypeRevenueCenter MappingType = "revenue_center"
	MappingTypeServiceType   MappingType = "service_type"
)

func (m MappingType) IsValid() bool {
	switch m {
	case MappingTypeCategory, MappingTypeRevenueCenter, MappingTypeServiceType:
		return true
	}
	return false
}

// ValidMappingTarget reports whether target is an acceptable value for the
// given mapping type. Category mappings point at revenue buckets, revenue
// centers at dayparts, service types at channels.
func ValidMappingTarget(mappingType MappingType, target string) bool {
	switch mappingType {
	case MappingTypeCategory:
		return RevenueBucket(target).IsValid()
	case MappingTypeRevenueCenter:
		return Daypart(target).IsValid()
	case MappingTypeServiceType:
		return Channel(target).IsValid()
	}
	return false
}
