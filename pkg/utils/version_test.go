package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("UserAgent", func() {
	var version, sha string

	BeforeEach(func() {
		version, sha = Version, Sha
		DeferCleanup(func() {
			Version, Sha = version, sha
		})
	})

	It("reports the dev build without a commit", func() {
		Version, Sha = "dev", "HEAD"
		Expect(AppID()).To(Equal("converse/dev"))
		Expect(UserAgent()).To(Equal("converse/dev"))
	})

	It("includes the commit of a release build", func() {
		Version, Sha = "v0.3.0", "4f2c1ab"
		Expect(UserAgent()).To(Equal("converse/v0.3.0 (4f2c1ab)"))
	})
})
