// Package types contains shared types used across pycache components.
package types
