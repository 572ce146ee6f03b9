// Package registry resolves federation identities to their group public
// keys. The coordinator verifies final signatures only against keys obtained
// here, never against caller-supplied material.
package registry
