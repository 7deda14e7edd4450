package auth

import (
	"fmt"
	"strings"
)

// ShowCredentialsGuide explains where each backend looks for credentials
func ShowCredentialsGuide() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("CREDENTIALS")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	fmt.Println("Credentials are looked up per site, in this order:")
	fmt.Println("   1. The credentials file (credentials.file in the config)")
	fmt.Println("   2. The system keychain")
	fmt.Println("   3. The encrypted file in the config directory")
	fmt.Println("   4. REDDITCRAWLER_<SITE>_<FIELD> environment variables")
	fmt.Println()

	fmt.Println("The credentials file is JSON keyed by site:")
	fmt.Println(`   {`)
	fmt.Println(`     "reddit": {`)
	fmt.Println(`       "client_id": "...", "client_secret": "...",`)
	fmt.Println(`       "username": "...", "password": "...", "user_agent": "..."`)
	fmt.Println(`     },`)
	fmt.Println(`     "mongo": {`)
	fmt.Println(`       "user": "...", "password": "...", "db_name": "reddit",`)
	fmt.Println(`       "host": "localhost",`)
	fmt.Println(`       "local_network": "192.168.1.10:27017",`)
	fmt.Println(`       "localhost": "127.0.0.1:27017",`)
	fmt.Println(`       "public": "db.example.com:27017"`)
	fmt.Println(`     }`)
	fmt.Println(`   }`)
	fmt.Println()

	fmt.Println("Required fields:")
	for _, site := range []string{SiteReddit, SiteMongo} {
		fmt.Printf("   %-7s %s\n", site, strings.Join(RequiredFields[site], ", "))
	}
	fmt.Println()
	fmt.Println("The mongo host field selects one of local_network, localhost or public.")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
}

// PromptFields returns the fields asked for when storing a site interactively
func PromptFields(site string) []string {
	switch site {
	case SiteReddit:
		return []string{"client_id", "client_secret", "username", "password", "user_agent"}
	case SiteMongo:
		return append([]string{"user", "password", "host"}, append(MongoHostSelectors, "db_name")...)
	default:
		return nil
	}
}
