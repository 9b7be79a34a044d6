package finding

// Category groups rules by the kind of artifact they look for. The
// detector registry keys its factories on this value.
type Category string

const (
	CategoryLeak      Category = "leak"      // VCS metadata (.git, .svn, .hg)
	CategoryBackup    Category = "backup"    // archives, dumps, editor swap files
	CategoryAPI       Category = "api"       // API docs and unauthenticated endpoints
	CategoryConfig    Category = "config"    // .env, application config files
	CategoryCloud     Category = "cloud"     // cloud credentials and storage config
	CategoryCI        Category = "ci"        // CI/CD and container definitions
	CategoryFramework Category = "framework" // debug consoles, actuators, phpinfo
	CategorySecurity  Category = "security"  // header policy (CORS, CSP)
	CategoryCustom    Category = "custom"
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryLeak, CategoryBackup, CategoryAPI, CategoryConfig,
		CategoryCloud, CategoryCI, CategoryFramework, CategorySecurity, CategoryCustom:
		return true
	}
	return false
}

func (c Category) String() string { return string(c) }
