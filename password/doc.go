// Package password provides the secret-versus-hash comparison used during login,
// plus hashing for seeding and administration.
//
// Argon2id hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Bcrypt hashes are accepted for stores migrated from older systems. [Auto]
// dispatches on the hash prefix so one comparer serves both.
//
// Every Verify implementation compares in constant time and reports a malformed
// stored hash as an error rather than as a mismatch.
//
// This package never stores secrets and must not log plaintext or hash material.
package password
