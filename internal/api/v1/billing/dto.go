package billing

// PackageResponse is one entry of the purchasable credit catalog.
type PackageResponse struct {
	ID              string `json:"id"`
	Credits         int64  `json:"credits"`
	PriceMinorUnits int64  `json:"price_minor_units"`
	DisplayName     string `json:"display_name"`
}

type PackageListResponse struct {
	Packages []PackageResponse `json:"packages"`
}
