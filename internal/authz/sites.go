package authz

// Site codes map to the display names of the corresponding site groups. The
// table is fixed: site groups are seeded once per deployment and referenced
// by code everywhere else.
var siteGroupNames = map[string]string{
	"mbt": "איילת השחר",
	"kir": "קריית שמונה",
	"nvt": "נבטים",
	"rmn": "רמון",
	"plm": "פלמחים",
	"tln": "תל נוף",
}

var siteCodesByName = func() map[string]string {
	m := make(map[string]string, len(siteGroupNames))
	for code, name := range siteGroupNames {
		m[name] = code
	}
	return m
}()

// SiteGroupName resolves a site code to its group name.
func SiteGroupName(code string) (string, bool) {
	name, ok := siteGroupNames[code]
	return name, ok
}

// SiteCodeForGroupName resolves a site-group name back to its site code.
func SiteCodeForGroupName(name string) (string, bool) {
	code, ok := siteCodesByName[name]
	return code, ok
}

// KnownSite reports whether the code names a configured site.
func KnownSite(code string) bool {
	_, ok := siteGroupNames[code]
	return ok
}

// SiteCodes returns all configured site codes.
func SiteCodes() []string {
	codes := make([]string, 0, len(siteGroupNames))
	for code := range siteGroupNames {
		codes = append(codes, code)
	}
	return codes
}
