package app

import (
    "errors"
    "fmt"
    "os"
    "strings"

    "github.com/joho/godotenv"
)

// LoadEnvFiles loads one or more dotenv files into the process environment.
// Variables already present in the environment are kept, and earlier files
// win over later ones. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
    for _, p := range paths {
        if strings.TrimSpace(p) == "" {
            continue
        }
        if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
            continue
        }
        if err := godotenv.Load(p); err != nil {
            return fmt.Errorf("load env %s: %w", p, err)
        }
    }
    return nil
}
