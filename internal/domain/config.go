package domain

// KeyPrefix namespaces every key docextract writes to the key-value store.
const KeyPrefix = "docextract:"
