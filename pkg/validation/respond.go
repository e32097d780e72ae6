package validation

import "github.com/gofiber/fiber/v2"

// Respond writes a Laravel-style 400 body.
func Respond(c *fiber.Ctx, errs map[string][]string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  errs,
	})
}

// Field builds a single-field error map, for checks the tags cannot express.
func Field(name, msg string) map[string][]string {
	return map[string][]string{name: {msg}}
}
