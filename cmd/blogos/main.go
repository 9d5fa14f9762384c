// Command blogos boots the kernel memory-management sub-system on a
// simulated amd64 machine and exercises the kernel heap.
package main

func main() {
	execute()
}
