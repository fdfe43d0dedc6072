package branches_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zdziszkee/swift-registry/internal/branches"
	"github.com/zdziszkee/swift-registry/internal/models"
)

func TestBranches(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Branch Resolver Suite")
}

func bank(code string, hq, active bool) models.SwiftBank {
	return models.SwiftBank{
		SwiftCode:     code,
		SwiftCodeBase: code[:8],
		BankName:      "Bank " + code,
		Address:       "Main St 1, Town",
		CountryISO2:   "US",
		CountryName:   "UNITED STATES",
		IsHeadquarter: hq,
		IsActive:      active,
	}
}

var _ = Describe("Resolve", func() {
	hq := bank("BOFAUS3NXXX", true, true)

	It("should return branches sharing the institution prefix in code order", func() {
		candidates := []models.SwiftBank{
			bank("BOFAUS3NSFO", false, true),
			hq,
			bank("BOFAUS3NBOS", false, true),
			bank("BOFAUS6SXXX", true, true),
			bank("BOFAUS6SLAX", false, true),
		}

		got := branches.Resolve(hq, candidates)
		Expect(got).To(HaveLen(2))
		Expect(got[0].SwiftCode).To(Equal("BOFAUS3NBOS"))
		Expect(got[1].SwiftCode).To(Equal("BOFAUS3NSFO"))
	})

	It("should skip inactive and headquarters records", func() {
		candidates := []models.SwiftBank{
			bank("BOFAUS3NBOS", false, false),
			bank("BOFAUS3NHQ2", true, true),
		}
		Expect(branches.Resolve(hq, candidates)).To(BeEmpty())
	})

	It("should return an empty, non-nil list for a headquarters without branches", func() {
		got := branches.Resolve(hq, nil)
		Expect(got).NotTo(BeNil())
		Expect(got).To(BeEmpty())
	})

	It("should return nil for a branch", func() {
		branch := bank("BOFAUS3NBOS", false, true)
		Expect(branches.Resolve(branch, []models.SwiftBank{hq, bank("BOFAUS3NSFO", false, true)})).To(BeNil())
	})

	It("should ignore candidates with codes shorter than a prefix", func() {
		short := models.SwiftBank{SwiftCode: "BOFA", IsActive: true}
		Expect(branches.Resolve(hq, []models.SwiftBank{short})).To(BeEmpty())
	})
})

var _ = Describe("Project", func() {
	It("should keep only public fields", func() {
		b := bank("BOFAUS3NBOS", false, true)
		b.TimeZone = "America/New_York"

		got := branches.Project([]models.SwiftBank{b})
		Expect(got).To(Equal([]models.BranchSummary{{
			SwiftCode:     "BOFAUS3NBOS",
			BankName:      "Bank BOFAUS3NBOS",
			Address:       "Main St 1, Town",
			CountryISO2:   "US",
			IsHeadquarter: false,
		}}))
	})
})
