package cache

import "fmt"

func JobStatusKey(jobID string) string {
	return fmt.Sprintf("job:%s:status", jobID)
}

func GenerationStatusKey(generationJobID string) string {
	return fmt.Sprintf("generation:%s:status", generationJobID)
}

func RefreshTokenKey(token string) string {
	return fmt.Sprintf("refresh:%s", token)
}

func RateLimitKey(userID string) string {
	return fmt.Sprintf("ratelimit:%s", userID)
}
