// Package gazettest provides a small reference geography for tests: Bicol,
// parts of the Visayas and two NCR districts, using short P-codes.
package gazettest

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reliefmap/pcoder/internal/gazetteer"
)

// Codes used by the fixture.
const (
	Country          = "PH"
	Bicol            = "PH05"
	Albay            = "PH0505"
	Daraga           = "PH050506"
	Legazpi          = "PH050508"
	Tabaco           = "PH050517"
	CamarinesSur     = "PH0517"
	Naga             = "PH051724"
	SanJoseCamSur    = "PH051729"
	WesternVisayas   = "PH06"
	NegrosOccidental = "PH0645"
	Bacolod          = "PH064501"
	CentralVisayas   = "PH07"
	Cebu             = "PH0722"
	Carcar           = "PH072214"
	CebuCity         = "PH072217"
	EasternVisayas   = "PH08"
	Leyte            = "PH0837"
	Ormoc            = "PH083738"
	SanJoseLeyte     = "PH083740"
	NCR              = "PH13"
	ManilaDistrict   = "PH1339"
	Manila           = "PH133900"
	SecondDistrict   = "PH1374"
	QuezonCity       = "PH137404"
	NIR              = "PH18"

	DaragaAlcala      = "PH050506001"
	DaragaBagumbayan  = "PH050506002"
	LegazpiBagumbayan = "PH050508001"
	LegazpiBitano     = "PH050508002"
	NagaAbella        = "PH051724001"
	CebuCityLahug     = "PH072217001"
)

// Entities returns the fixture entity list.
func Entities() []gazetteer.Entity {
	muni := gazetteer.LevelMunicipality
	return []gazetteer.Entity{
		{Code: Country, Name: "Philippines", Level: gazetteer.LevelCountry},

		{Code: Bicol, Name: "Region V (Bicol Region)", Level: gazetteer.LevelRegion, ParentCode: Country},
		{Code: WesternVisayas, Name: "Region VI (Western Visayas)", Level: gazetteer.LevelRegion, ParentCode: Country},
		{Code: CentralVisayas, Name: "Region VII (Central Visayas)", Level: gazetteer.LevelRegion, ParentCode: Country},
		{Code: EasternVisayas, Name: "Region VIII (Eastern Visayas)", Level: gazetteer.LevelRegion, ParentCode: Country},
		{Code: NCR, Name: "National Capital Region (NCR)", Level: gazetteer.LevelRegion, ParentCode: Country},
		{Code: NIR, Name: "Negros Island Region (NIR)", Level: gazetteer.LevelRegion, ParentCode: Country},

		{Code: Albay, Name: "Albay", Level: gazetteer.LevelProvince, ParentCode: Bicol},
		{Code: CamarinesSur, Name: "Camarines Sur", Level: gazetteer.LevelProvince, ParentCode: Bicol},
		{Code: NegrosOccidental, Name: "Negros Occidental", Level: gazetteer.LevelProvince, ParentCode: WesternVisayas},
		{Code: Cebu, Name: "Cebu", Level: gazetteer.LevelProvince, ParentCode: CentralVisayas},
		{Code: Leyte, Name: "Leyte", Level: gazetteer.LevelProvince, ParentCode: EasternVisayas},
		{Code: ManilaDistrict, Name: "NCR, City of Manila, First District", Level: gazetteer.LevelProvince, ParentCode: NCR},
		{Code: SecondDistrict, Name: "NCR, Second District", Level: gazetteer.LevelProvince, ParentCode: NCR},

		{Code: Daraga, Name: "Daraga", Level: muni, ParentCode: Albay},
		{Code: Legazpi, Name: "City of Legazpi", Level: muni, ParentCode: Albay},
		{Code: Tabaco, Name: "City of Tabaco", Level: muni, ParentCode: Albay},
		{Code: Naga, Name: "City of Naga", Level: muni, ParentCode: CamarinesSur},
		{Code: SanJoseCamSur, Name: "San Jose", Level: muni, ParentCode: CamarinesSur},
		{Code: Bacolod, Name: "Bacolod City", Level: muni, ParentCode: WesternVisayas, IsHUC: true},
		{Code: Carcar, Name: "City of Carcar", Level: muni, ParentCode: Cebu},
		{Code: CebuCity, Name: "Cebu City", Level: muni, ParentCode: CentralVisayas, IsHUC: true},
		{Code: Ormoc, Name: "Ormoc City", Level: muni, ParentCode: Leyte},
		{Code: SanJoseLeyte, Name: "San Jose", Level: muni, ParentCode: Leyte},
		{Code: Manila, Name: "City of Manila", Level: muni, ParentCode: ManilaDistrict, IsHUC: true},
		{Code: QuezonCity, Name: "Quezon City", Level: muni, ParentCode: SecondDistrict, IsHUC: true},

		{Code: DaragaAlcala, Name: "Alcala", Level: gazetteer.LevelBarangay, ParentCode: Daraga},
		{Code: DaragaBagumbayan, Name: "Bagumbayan", Level: gazetteer.LevelBarangay, ParentCode: Daraga},
		{Code: LegazpiBagumbayan, Name: "Bagumbayan", Level: gazetteer.LevelBarangay, ParentCode: Legazpi},
		{Code: LegazpiBitano, Name: "Bitano", Level: gazetteer.LevelBarangay, ParentCode: Legazpi},
		{Code: NagaAbella, Name: "Abella", Level: gazetteer.LevelBarangay, ParentCode: Naga},
		{Code: CebuCityLahug, Name: "Lahug", Level: gazetteer.LevelBarangay, ParentCode: CebuCity},
	}
}

// New builds the fixture gazetteer.
func New(t testing.TB, opts ...gazetteer.Option) *gazetteer.Gazetteer {
	t.Helper()
	g, err := gazetteer.New(Entities(), opts...)
	require.NoError(t, err)
	return g
}

// LongCSV renders the fixture in the long reference layout.
func LongCSV() string {
	var b strings.Builder
	b.WriteString("code,name,level,parent_code,is_huc\n")
	for _, e := range Entities() {
		b.WriteString(strings.Join([]string{
			e.Code,
			strconv.Quote(e.Name),
			e.Level.String(),
			e.ParentCode,
			strconv.FormatBool(e.IsHUC),
		}, ","))
		b.WriteString("\n")
	}
	return b.String()
}

// HUCs returns a HUC table listing the fixture's highly urbanized cities
// under both report spellings.
func HUCs() *gazetteer.HUCTable {
	return gazetteer.NewHUCTable([]gazetteer.HUCEntry{
		{First: "City of Bacolod", Last: "Bacolod City", Code: Bacolod},
		{First: "City of Cebu", Last: "Cebu City", Code: CebuCity},
		{First: "City of Manila", Last: "Manila City", Code: Manila},
		{First: "Quezon City", Last: "Quezon City", Code: QuezonCity},
	})
}
