// Command reviewer-token mints a bearer token for the decision endpoint,
// signed with the server's configured reviewer key.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "onboard/internal/jwt_token"
	"onboard/internal/platform/config"
	id "onboard/pkg/domain"
)

func main() {
	reviewer := flag.String("reviewer", "", "reviewer id placed in the token subject")
	name := flag.String("name", "", "display name")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	if err := run(*reviewer, *name, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "reviewer-token: %v\n", err)
		os.Exit(1)
	}
}

func run(reviewer, name string, ttl time.Duration) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	reviewerID, err := id.ParseReviewerID(reviewer)
	if err != nil {
		return fmt.Errorf("-reviewer: %w", err)
	}

	svc := jwttoken.NewJWTService(cfg.Server.SigningKey(), cfg.Server.ReviewerIssuer, cfg.Server.ReviewerAudience)
	token, err := svc.GenerateReviewerToken(reviewerID, name, ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Println(token)
	return nil
}
