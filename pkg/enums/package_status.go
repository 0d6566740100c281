package enums

// PackageStatus mirrors the package record lifecycle owned by the warehouse
// intake collaborator. The consolidation core only reads it.
type PackageStatus string

const (
	PackageStatusExpected     PackageStatus = "expected"
	PackageStatusReceived     PackageStatus = "received"
	PackageStatusConsolidated PackageStatus = "consolidated"
	PackageStatusShipped      PackageStatus = "shipped"
)

// String implements fmt.Stringer.
func (p PackageStatus) String() string {
	return string(p)
}
