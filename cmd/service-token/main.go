// service-token mints a JWT accepted by the internal ops endpoints
// (scheduler jobs, sibling services calling /internal/*). The token is
// printed to stdout; lifetime follows TOKEN_HOUR_LIFESPAN, signing key
// follows API_SECRET, same as the server.
//
// Usage (from backend directory):
//
//	API_SECRET=... go run ./cmd/service-token --user-id 0 --role service
package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/expenses_backend/utils"
)

func main() {
	userID := flag.Int("user-id", 0, "Subject user id recorded in the claim")
	role := flag.String("role", "service", "Role recorded in the claim")
	flag.Parse()

	token, err := utils.JwtGenerate(*userID, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
