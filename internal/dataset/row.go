// Package dataset models budget transaction rows and loads them into the
// object store as year partitioned parquet files.
package dataset

import "time"

// Row is one budget transaction as exported by the Tutkihallintoa ledger API.
// Parquet column names match the dataset schema exactly, including the
// non-ASCII ones.
type Row struct {
	Vuosi     int32 `parquet:"Vuosi" json:"Vuosi"`
	Kk        int32 `parquet:"Kk" json:"Kk"`
	YearMonth int32 `parquet:"YearMonth,date" json:"YearMonth"`

	HaTunnus               string `parquet:"Ha_Tunnus" json:"Ha_Tunnus"`
	Hallinnonala           string `parquet:"Hallinnonala" json:"Hallinnonala"`
	TvTunnus               string `parquet:"Tv_Tunnus" json:"Tv_Tunnus"`
	Kirjanpitoyksikko      string `parquet:"Kirjanpitoyksikkö" json:"Kirjanpitoyksikkö"`
	PaaluokkaOsastoTunnusP string `parquet:"PaaluokkaOsasto_TunnusP" json:"PaaluokkaOsasto_TunnusP"`
	PaaluokkaOsastoSNimi   string `parquet:"PaaluokkaOsasto_sNimi" json:"PaaluokkaOsasto_sNimi"`
	LukuTunnusP            string `parquet:"Luku_TunnusP" json:"Luku_TunnusP"`
	LukuSNimi              string `parquet:"Luku_sNimi" json:"Luku_sNimi"`
	MomenttiTunnusP        string `parquet:"Momentti_TunnusP" json:"Momentti_TunnusP"`
	MomenttiSNimi          string `parquet:"Momentti_sNimi" json:"Momentti_sNimi"`
	TakpTTunnusP           string `parquet:"TakpT_TunnusP" json:"TakpT_TunnusP"`
	TakpTSNimi             string `parquet:"TakpT_sNimi" json:"TakpT_sNimi"`
	TakpTrSNimi            string `parquet:"TakpTr_sNimi" json:"TakpTr_sNimi"`
	TililuokkaTunnus       string `parquet:"Tililuokka_Tunnus" json:"Tililuokka_Tunnus"`
	TililuokkaSNimi        string `parquet:"Tililuokka_sNimi" json:"Tililuokka_sNimi"`
	YlatiliryhmaTunnus     string `parquet:"Ylatiliryhma_Tunnus" json:"Ylatiliryhma_Tunnus"`
	YlatiliryhmaSNimi      string `parquet:"Ylatiliryhma_sNimi" json:"Ylatiliryhma_sNimi"`
	TiliryhmaTunnus        string `parquet:"Tiliryhma_Tunnus" json:"Tiliryhma_Tunnus"`
	TiliryhmaSNimi         string `parquet:"Tiliryhma_sNimi" json:"Tiliryhma_sNimi"`
	TililajiTunnus         string `parquet:"Tililaji_Tunnus" json:"Tililaji_Tunnus"`
	TililajiSNimi          string `parquet:"Tililaji_sNimi" json:"Tililaji_sNimi"`
	LkpTTunnus             string `parquet:"LkpT_Tunnus" json:"LkpT_Tunnus"`
	LkpTSNimi              string `parquet:"LkpT_sNimi" json:"LkpT_sNimi"`

	AlkuperainenTalousarvio   float64 `parquet:"Alkuperäinen_talousarvio" json:"Alkuperäinen_talousarvio"`
	Lisatalousarvio           float64 `parquet:"Lisätalousarvio" json:"Lisätalousarvio"`
	VoimassaolevaTalousarvio  float64 `parquet:"Voimassaoleva_talousarvio" json:"Voimassaoleva_talousarvio"`
	Kaytettavissa             float64 `parquet:"Käytettävissä" json:"Käytettävissä"`
	Alkusaldo                 float64 `parquet:"Alkusaldo" json:"Alkusaldo"`
	NettokertymaKoVuodelta    float64 `parquet:"Nettokertymä_ko_vuodelta" json:"Nettokertymä_ko_vuodelta"`
	NettoKertymaAikVuosSiirrt float64 `parquet:"NettoKertymaAikVuosSiirrt" json:"NettoKertymaAikVuosSiirrt"`
	Nettokertyma              float64 `parquet:"Nettokertymä" json:"Nettokertymä"`
	Loppusaldo                float64 `parquet:"Loppusaldo" json:"Loppusaldo"`
}

var epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// DaysSinceEpoch converts a calendar date to the parquet DATE representation.
func DaysSinceEpoch(t time.Time) int32 {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int32(t.Sub(epoch) / (24 * time.Hour))
}

// Month returns the first day of the row's ledger month.
func (r Row) Month() time.Time {
	return epoch.AddDate(0, 0, int(r.YearMonth))
}
