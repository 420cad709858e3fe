package api

import "github.com/gofiber/fiber/v3"

const bearerPrefix = "Bearer "

// sessionToken extracts the access token from the request: the Authorization header takes priority, falling back to
// the session cookie so a browser client that only stores the cookie can still hit authenticated endpoints.
func sessionToken(c fiber.Ctx, cookieName string) string {
	header := c.Get("Authorization")
	if len(header) > len(bearerPrefix) && header[:len(bearerPrefix)] == bearerPrefix {
		return header[len(bearerPrefix):]
	}
	return c.Cookies(cookieName)
}
